package accounts

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultMessagesPerRoom is the number of recent messages loaded per chat room
const DefaultMessagesPerRoom = 10

// defaultMessageFanOut bounds concurrent per room message queries
const defaultMessageFanOut = 4

// GraphService loads a user with its active domain graph.
type GraphService struct {
	users           Users
	graphs          DomainGraphs
	messagesPerRoom int
	fanOut          int
	logger          Logger
	metrics         *Metrics
}

var _ GraphLoader = (*GraphService)(nil)

// GraphOption customizes the graph service
type GraphOption func(*GraphService)

// WithMessagesPerRoom overrides DefaultMessagesPerRoom.
func WithMessagesPerRoom(n int) GraphOption {
	return func(s *GraphService) {
		if n > 0 {
			s.messagesPerRoom = n
		}
	}
}

// WithMessageFanOut sets how many rooms are queried concurrently.
func WithMessageFanOut(n int) GraphOption {
	return func(s *GraphService) {
		if n > 0 {
			s.fanOut = n
		}
	}
}

// WithGraphLogger sets the logger.
func WithGraphLogger(logger Logger) GraphOption {
	return func(s *GraphService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGraphMetrics sets the metrics collector.
func WithGraphMetrics(m *Metrics) GraphOption {
	return func(s *GraphService) {
		s.metrics = m
	}
}

// NewGraphService returns a graph loader reading users and domain graphs.
func NewGraphService(users Users, graphs DomainGraphs, opts ...GraphOption) *GraphService {
	s := &GraphService{
		users:           users,
		graphs:          graphs,
		messagesPerRoom: DefaultMessagesPerRoom,
		fanOut:          defaultMessageFanOut,
		logger:          defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// LoadUserGraph returns the active graph of userID. A user without domains
// gets an empty list.
func (s *GraphService) LoadUserGraph(ctx context.Context, userID uuid.UUID) (*UserGraph, error) {
	start := time.Now()
	defer s.metrics.ObserveGraphLoad(start)

	user, err := s.users.GetActiveByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, NewError(ErrUserNotFound, map[string]any{"user_id": userID.String()})
		}
		return nil, WrapError(ErrPersistenceUnavailable, err, map[string]any{"user_id": userID.String()})
	}

	domains, err := s.graphs.ActiveDomains(ctx, user.ID)
	if err != nil {
		return nil, WrapError(ErrPersistenceUnavailable, err, map[string]any{"user_id": userID.String()})
	}

	domains = activeDomains(domains)
	if err := s.loadMessages(ctx, domains); err != nil {
		return nil, WrapError(ErrPersistenceUnavailable, err, map[string]any{"user_id": userID.String()})
	}

	return &UserGraph{
		ID:       user.ID,
		FullName: user.FullName,
		Type:     user.Type,
		Email:    user.Email,
		Role:     user.Role,
		Domains:  domains,
	}, nil
}

func (s *GraphService) loadMessages(ctx context.Context, domains []*Domain) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)

	for _, d := range domains {
		for _, c := range d.Customers {
			for _, room := range c.ChatRooms {
				g.Go(func() error {
					msgs, err := s.graphs.RecentMessages(ctx, room.ID, s.messagesPerRoom)
					if err != nil {
						return err
					}
					room.Messages = recentMessages(msgs, s.messagesPerRoom)
					return nil
				})
			}
		}
	}

	return g.Wait()
}

// activeDomains filters and orders a graph returned by any store.
func activeDomains(in []*Domain) []*Domain {
	out := make([]*Domain, 0, len(in))
	for _, d := range in {
		if d == nil || !d.IsActive {
			continue
		}

		bots := make([]*ChatBot, 0, len(d.ChatBots))
		for _, b := range d.ChatBots {
			if b == nil || !b.IsActive {
				continue
			}
			questions := make([]*FilteredQuestion, 0, len(b.FilteredQuestions))
			for _, q := range b.FilteredQuestions {
				if q != nil && q.IsActive {
					questions = append(questions, q)
				}
			}
			b.FilteredQuestions = questions
			bots = append(bots, b)
		}
		d.ChatBots = bots

		customers := make([]*Customer, 0, len(d.Customers))
		for _, c := range d.Customers {
			if c == nil || !c.IsActive {
				continue
			}
			rooms := make([]*ChatRoom, 0, len(c.ChatRooms))
			for _, r := range c.ChatRooms {
				if r != nil && r.IsActive {
					r.Messages = []*Message{}
					rooms = append(rooms, r)
				}
			}
			c.ChatRooms = rooms
			customers = append(customers, c)
		}
		d.Customers = customers

		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})

	return out
}

// recentMessages orders newest first, then by id, and keeps at most limit messages.
func recentMessages(in []*Message, limit int) []*Message {
	out := make([]*Message, 0, len(in))
	for _, m := range in {
		if m != nil {
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
