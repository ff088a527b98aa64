package store

// Table and view names as created by the migrations.
const (
	TableBooksSearch = "books_search"
	TableBooksOwned  = "books_owned"
	TableLocations   = "locations"
	TableUsers       = "users"
	TableChats       = "chats"
	TableMessages    = "messages"
	TableOutbox      = "outbox"

	ViewBooksLocation = "v_books_location"
	ViewMessagesUsers = "v_messages_users"
	ViewChatsLatest   = "v_chats_latest"
)

// Book mirrors a server book resource. BookID is the server-assigned id and
// the upsert key; ID is the local surrogate.
type Book struct {
	ID          int64
	BookID      string
	ISBN10      string
	ISBN13      string
	Title       string
	Author      string
	Description string
	BarterType  string
	OwnerID     string
	LocationID  string
	ImageURL    string
	PubYear     int
	PubMonth    int
	Price       float64
	Condition   string
}

// Location mirrors a server location resource.
type Location struct {
	ID         int64
	LocationID string
	Name       string
	Address    string
	Street     string
	Locality   string
	City       string
	State      string
	Country    string
	Latitude   float64
	Longitude  float64
}

// User mirrors a server user resource.
type User struct {
	ID             int64
	UserID         string
	FirstName      string
	LastName       string
	ProfilePicture string
}

// FullName returns the display name derived from first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

// Chat is a conversation between the local user and one peer. ChatID is
// derived from the participant pair, see ChatID.
type Chat struct {
	ID                 int64
	ChatID             string
	SenderID           string
	ReceiverID         string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message is a single chat message. SentAt is the human-readable server
// timestamp, Timestamp the epoch millis used for ordering. Status tracks
// delivery: received, sending, sent, failed.
type Message struct {
	ID          int64
	ChatID      string
	ClientMsgID string
	SenderID    string
	ReceiverID  string
	Body        string
	SentAt      string
	Timestamp   int64
	Status      string
}

// OutboxEntry is a pending outgoing chat message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatID       string
	ReceiverID   string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}

// BookListing is a row from v_books_location: a search result with its
// location summary.
type BookListing struct {
	Book         Book
	LocationName string
	City         string
	State        string
	Country      string
	Latitude     float64
	Longitude    float64
}
