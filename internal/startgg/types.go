package startgg

// Response shapes for the GraphQL queries in queries.go. Optional fields
// are pointers so "absent" and "zero" stay distinguishable downstream.

// PageInfo is the standard pagination envelope on paged connections.
type PageInfo struct {
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
}

// TeamRosterSize is the roster metadata distinguishing singles from team
// events.
type TeamRosterSize struct {
	MinPlayers int `json:"minPlayers"`
	MaxPlayers int `json:"maxPlayers"`
}

// VideogameRef is a bare videogame reference on an event.
type VideogameRef struct {
	ID int64 `json:"id"`
}

// Location is the shared part of a user's profile location.
type Location struct {
	State *string `json:"state"`
}

// User is the profile behind a participant, when shared.
type User struct {
	Location *Location `json:"location"`
}

// EntrantRef is a bare entrant reference on a selection.
type EntrantRef struct {
	ID int64 `json:"id"`
}

// CharacterRef is the inline character on a selection.
type CharacterRef struct {
	ID   int64   `json:"id"`
	Name *string `json:"name"`
}

// Tournament is one tournament node from the discovery query.
type Tournament struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	City         *string `json:"city"`
	AddrState    *string `json:"addrState"`
	CountryCode  *string `json:"countryCode"`
	StartAt      *int64  `json:"startAt"`
	EndAt        *int64  `json:"endAt"`
	NumAttendees *int    `json:"numAttendees"`
	Events       []Event `json:"events"`
}

// Event is one event (bracket) within a tournament.
type Event struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Slug           string          `json:"slug"`
	NumEntrants    *int            `json:"numEntrants"`
	StartAt        *int64          `json:"startAt"`
	State          string          `json:"state"` // activity state, e.g. "COMPLETED"
	TeamRosterSize *TeamRosterSize `json:"teamRosterSize"`
	Videogame      *VideogameRef   `json:"videogame"`
}

// NumEntrantsOr returns the entrant count, or fallback when the upstream
// omitted it.
func (e *Event) NumEntrantsOr(fallback int) int {
	if e.NumEntrants != nil && *e.NumEntrants > 0 {
		return *e.NumEntrants
	}
	return fallback
}

// Singles reports whether the event is a 1v1 bracket. Events without
// roster metadata are treated as singles (the upstream omits it for them).
func (e *Event) Singles() bool {
	if e.TeamRosterSize == nil {
		return true
	}
	return e.TeamRosterSize.MaxPlayers <= 1
}

// Player is the persistent player identity behind a participant.
type Player struct {
	ID       int64  `json:"id"`
	GamerTag string `json:"gamerTag"`
}

// Participant joins an entrant slot to a player and, when shared, their
// profile location.
type Participant struct {
	ID       int64   `json:"id"`
	GamerTag string  `json:"gamerTag"`
	Player   *Player `json:"player"`
	User     *User   `json:"user"`
}

// Entrant is one competitor in an event (a single participant for singles).
type Entrant struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Participants []Participant `json:"participants"`
}

// Seed is one entry of an event's seeding.
type Seed struct {
	ID      int64    `json:"id"`
	SeedNum int      `json:"seedNum"`
	Entrant *Entrant `json:"entrant"`
}

// Standing is one entry of an event's final standings.
type Standing struct {
	Placement int      `json:"placement"`
	Entrant   *Entrant `json:"entrant"`
}

// Selection is a character pick inside a game. SelectionValue is the
// upstream character id resolved through the character map.
type Selection struct {
	SelectionType  string        `json:"selectionType"`
	SelectionValue *int64        `json:"selectionValue"`
	Entrant        *EntrantRef   `json:"entrant"`
	Character      *CharacterRef `json:"character"`
}

// Game is one game of a set.
type Game struct {
	ID         int64       `json:"id"`
	WinnerID   *int64      `json:"winnerId"`
	OrderNum   *int        `json:"orderNum"`
	Selections []Selection `json:"selections"`
}

// SetSlot binds a set position to an entrant.
type SetSlot struct {
	Entrant *Entrant `json:"entrant"`
}

// Set is one set of an event's bracket.
type Set struct {
	ID            int64     `json:"id"`
	Round         *int      `json:"round"`
	FullRoundText *string   `json:"fullRoundText"`
	DisplayScore  *string   `json:"displayScore"`
	WinnerID      *int64    `json:"winnerId"`
	CompletedAt   *int64    `json:"completedAt"`
	Slots         []SetSlot `json:"slots"`
	Games         []Game    `json:"games"`
}

// Character is one entry of a videogame's character list.
type Character struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// EventBundle is everything needed to assemble player records for one
// event: the event itself plus its full seeds, standings, and sets.
type EventBundle struct {
	Tournament Tournament
	Event      Event
	Seeds      []Seed
	Standings  []Standing
	Sets       []Set
}
