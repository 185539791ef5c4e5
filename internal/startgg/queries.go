package startgg

import (
	"context"
	"fmt"
	"time"
)

// DefaultPerPage is the page size used for paginated queries when the
// caller does not override it.
const DefaultPerPage = 50

// tournamentsQuery discovers completed tournaments for a state and
// videogame inside a date window, newest first.
const tournamentsQuery = `
query TournamentsByState($state: String!, $videogameId: ID!, $afterDate: Timestamp, $beforeDate: Timestamp, $page: Int!, $perPage: Int!) {
  tournaments(query: {
    page: $page
    perPage: $perPage
    sortBy: "startAt desc"
    filter: {
      addrState: $state
      videogameIds: [$videogameId]
      afterDate: $afterDate
      beforeDate: $beforeDate
      upcoming: false
    }
  }) {
    pageInfo { total totalPages page perPage }
    nodes {
      id
      name
      slug
      city
      addrState
      countryCode
      startAt
      endAt
      numAttendees
      events(filter: { videogameId: [$videogameId] }) {
        id
        name
        slug
        numEntrants
        startAt
        state
        teamRosterSize { minPlayers maxPlayers }
        videogame { id }
      }
    }
  }
}`

// Seeding lives on the event's first phase (the initial bracket).
const phaseSeedsQuery = `
query PhaseSeeds($eventId: ID!, $page: Int!, $perPage: Int!) {
  event(id: $eventId) {
    phases {
      seeds(query: { page: $page, perPage: $perPage }) {
        pageInfo { total totalPages page perPage }
        nodes {
          id
          seedNum
          entrant {
            id
            name
            participants {
              id
              gamerTag
              player { id gamerTag }
              user { location { state } }
            }
          }
        }
      }
    }
  }
}`

const eventStandingsQuery = `
query EventStandings($eventId: ID!, $page: Int!, $perPage: Int!) {
  event(id: $eventId) {
    standings(query: { page: $page, perPage: $perPage }) {
      pageInfo { total totalPages page perPage }
      nodes {
        placement
        entrant {
          id
          name
          participants {
            id
            gamerTag
            player { id gamerTag }
            user { location { state } }
          }
        }
      }
    }
  }
}`

const eventSetsQuery = `
query EventSets($eventId: ID!, $page: Int!, $perPage: Int!) {
  event(id: $eventId) {
    sets(page: $page, perPage: $perPage, sortType: STANDARD) {
      pageInfo { total totalPages page perPage }
      nodes {
        id
        round
        fullRoundText
        displayScore
        winnerId
        completedAt
        slots {
          entrant {
            id
            name
            participants { id gamerTag player { id gamerTag } }
          }
        }
        games {
          id
          winnerId
          orderNum
          selections {
            selectionType
            selectionValue
            entrant { id }
            character { id name }
          }
        }
      }
    }
  }
}`

const charactersQuery = `
query VideogameCharacters($videogameId: ID!) {
  videogame(id: $videogameId) {
    characters { id name }
  }
}`

// TournamentFilter narrows tournament discovery.
type TournamentFilter struct {
	State       string
	VideogameID int64
	AfterDate   time.Time // zero means unbounded
	BeforeDate  time.Time // zero means unbounded
	PerPage     int
}

func (f TournamentFilter) vars(page int) map[string]any {
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	vars := map[string]any{
		"state":       f.State,
		"videogameId": f.VideogameID,
		"page":        page,
		"perPage":     perPage,
	}
	if !f.AfterDate.IsZero() {
		vars["afterDate"] = f.AfterDate.Unix()
	}
	if !f.BeforeDate.IsZero() {
		vars["beforeDate"] = f.BeforeDate.Unix()
	}
	return vars
}

// TournamentsPage fetches one discovery page.
func (c *Client) TournamentsPage(ctx context.Context, filter TournamentFilter, page int) ([]Tournament, PageInfo, error) {
	var resp struct {
		Tournaments struct {
			PageInfo PageInfo     `json:"pageInfo"`
			Nodes    []Tournament `json:"nodes"`
		} `json:"tournaments"`
	}
	if err := c.Do(ctx, tournamentsQuery, filter.vars(page), &resp); err != nil {
		return nil, PageInfo{}, fmt.Errorf("tournaments page %d: %w", page, err)
	}
	return resp.Tournaments.Nodes, resp.Tournaments.PageInfo, nil
}

// Tournaments drains all discovery pages for the filter. Results arrive
// newest first; draining stops once the upstream reports no further pages.
func (c *Client) Tournaments(ctx context.Context, filter TournamentFilter) ([]Tournament, error) {
	var out []Tournament
	for page := 1; ; page++ {
		nodes, info, err := c.TournamentsPage(ctx, filter, page)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
		if len(nodes) == 0 || page >= info.TotalPages {
			return out, nil
		}
	}
}

// EventSeeds drains the seeding of an event's first phase (the initial
// bracket seeding).
func (c *Client) EventSeeds(ctx context.Context, eventID int64) ([]Seed, error) {
	var out []Seed
	for page := 1; ; page++ {
		var resp struct {
			Event *struct {
				Phases []struct {
					Seeds struct {
						PageInfo PageInfo `json:"pageInfo"`
						Nodes    []Seed   `json:"nodes"`
					} `json:"seeds"`
				} `json:"phases"`
			} `json:"event"`
		}
		vars := map[string]any{"eventId": eventID, "page": page, "perPage": DefaultPerPage}
		if err := c.Do(ctx, phaseSeedsQuery, vars, &resp); err != nil {
			return nil, fmt.Errorf("event %d seeds page %d: %w", eventID, page, err)
		}
		if resp.Event == nil || len(resp.Event.Phases) == 0 {
			return out, nil
		}
		first := resp.Event.Phases[0]
		out = append(out, first.Seeds.Nodes...)
		if len(first.Seeds.Nodes) == 0 || page >= first.Seeds.PageInfo.TotalPages {
			return out, nil
		}
	}
}

// EventStandings drains an event's final standings.
func (c *Client) EventStandings(ctx context.Context, eventID int64) ([]Standing, error) {
	var out []Standing
	for page := 1; ; page++ {
		var resp struct {
			Event *struct {
				Standings struct {
					PageInfo PageInfo   `json:"pageInfo"`
					Nodes    []Standing `json:"nodes"`
				} `json:"standings"`
			} `json:"event"`
		}
		vars := map[string]any{"eventId": eventID, "page": page, "perPage": DefaultPerPage}
		if err := c.Do(ctx, eventStandingsQuery, vars, &resp); err != nil {
			return nil, fmt.Errorf("event %d standings page %d: %w", eventID, page, err)
		}
		if resp.Event == nil {
			return out, nil
		}
		out = append(out, resp.Event.Standings.Nodes...)
		if len(resp.Event.Standings.Nodes) == 0 || page >= resp.Event.Standings.PageInfo.TotalPages {
			return out, nil
		}
	}
}

// EventSets drains an event's sets, including per-game character
// selections.
func (c *Client) EventSets(ctx context.Context, eventID int64) ([]Set, error) {
	var out []Set
	for page := 1; ; page++ {
		var resp struct {
			Event *struct {
				Sets struct {
					PageInfo PageInfo `json:"pageInfo"`
					Nodes    []Set    `json:"nodes"`
				} `json:"sets"`
			} `json:"event"`
		}
		vars := map[string]any{"eventId": eventID, "page": page, "perPage": DefaultPerPage}
		if err := c.Do(ctx, eventSetsQuery, vars, &resp); err != nil {
			return nil, fmt.Errorf("event %d sets page %d: %w", eventID, page, err)
		}
		if resp.Event == nil {
			return out, nil
		}
		out = append(out, resp.Event.Sets.Nodes...)
		if len(resp.Event.Sets.Nodes) == 0 || page >= resp.Event.Sets.PageInfo.TotalPages {
			return out, nil
		}
	}
}

// Characters fetches the full character list for a videogame.
func (c *Client) Characters(ctx context.Context, videogameID int64) ([]Character, error) {
	var resp struct {
		Videogame *struct {
			Characters []Character `json:"characters"`
		} `json:"videogame"`
	}
	vars := map[string]any{"videogameId": videogameID}
	if err := c.Do(ctx, charactersQuery, vars, &resp); err != nil {
		return nil, fmt.Errorf("characters for videogame %d: %w", videogameID, err)
	}
	if resp.Videogame == nil {
		return nil, nil
	}
	return resp.Videogame.Characters, nil
}

// FetchEventBundle drains everything needed to assemble records for one
// event.
func (c *Client) FetchEventBundle(ctx context.Context, tournament Tournament, event Event) (*EventBundle, error) {
	seeds, err := c.EventSeeds(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	standings, err := c.EventStandings(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	sets, err := c.EventSets(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	return &EventBundle{
		Tournament: tournament,
		Event:      event,
		Seeds:      seeds,
		Standings:  standings,
		Sets:       sets,
	}, nil
}
