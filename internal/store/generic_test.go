package store

import "testing"

func TestGenericRoundTrip(t *testing.T) {
	db := testDB(t)

	id, err := db.InsertRow(TableBooksSearch, map[string]any{
		"book_id": "42",
		"title":   "Dune",
		"author":  "Frank Herbert",
		"price":   12.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if id <= 0 {
		t.Fatalf("row id = %d, want positive", id)
	}

	rs, err := db.QueryRows(Query{
		Table:   TableBooksSearch,
		Columns: []string{"book_id", "title", "price"},
		Where:   "book_id = ?",
		Args:    []any{"42"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 1 {
		t.Fatalf("got %d rows, want 1", rs.Len())
	}
	if got := rs.Value(0, "title"); got != "Dune" {
		t.Errorf("title = %v, want Dune", got)
	}
	if got := rs.Value(0, "price"); got != 12.5 {
		t.Errorf("price = %v, want 12.5", got)
	}

	affected, err := db.UpdateRows(TableBooksSearch, map[string]any{"title": "Dune Messiah"}, "book_id = ?", "42")
	if err != nil {
		t.Fatal(err)
	}
	if affected != 1 {
		t.Errorf("affected = %d, want 1", affected)
	}

	affected, err = db.DeleteRows(TableBooksSearch, "book_id = ?", "42")
	if err != nil {
		t.Fatal(err)
	}
	if affected != 1 {
		t.Errorf("deleted = %d, want 1", affected)
	}
}

func TestQueryRowsOrderingAndLimit(t *testing.T) {
	db := testDB(t)

	for _, title := range []string{"a", "b", "c"} {
		if _, err := db.InsertRow(TableBooksSearch, map[string]any{"book_id": title, "title": title}); err != nil {
			t.Fatal(err)
		}
	}

	rs, err := db.QueryRows(Query{
		Table:   TableBooksSearch,
		Columns: []string{"title"},
		OrderBy: "title DESC",
		Limit:   2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 2 {
		t.Fatalf("got %d rows, want 2", rs.Len())
	}
	if rs.Value(0, "title") != "c" || rs.Value(1, "title") != "b" {
		t.Errorf("rows = %v, want [c b]", rs.Rows)
	}
}

func TestEngineErrorsPropagate(t *testing.T) {
	db := testDB(t)

	// Malformed target table: the engine error surfaces unmodified.
	if _, err := db.InsertRow("no_such_table", map[string]any{"x": 1}); err == nil {
		t.Error("insert into missing table should fail")
	}
	if _, err := db.QueryRows(Query{Table: "no_such_table"}); err == nil {
		t.Error("query on missing table should fail")
	}
	// Constraint violation: duplicate server id on a direct insert.
	if _, err := db.InsertRow(TableBooksSearch, map[string]any{"book_id": "dup"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertRow(TableBooksSearch, map[string]any{"book_id": "dup"}); err == nil {
		t.Error("duplicate book_id insert should fail")
	}
}
