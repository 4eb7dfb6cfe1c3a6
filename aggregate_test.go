package accounts_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphService_FiltersInactiveRows(t *testing.T) {
	stores := setupStores(t)
	user := seedUser(t, stores, "ext_graph", accounts.UserTypeOwner)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	room := &accounts.ChatRoom{ID: uuid.New(), IsActive: true}
	closedRoom := &accounts.ChatRoom{ID: uuid.New(), IsActive: false}
	graphs := &fakeGraphs{
		domains: []*accounts.Domain{
			{
				ID: uuid.New(), Name: "shop.io", IsActive: true, CreatedAt: base,
				ChatBots: []*accounts.ChatBot{
					{ID: uuid.New(), Name: "helper", IsActive: true, FilteredQuestions: []*accounts.FilteredQuestion{
						{ID: uuid.New(), Question: "What is your budget?", IsActive: true},
						{ID: uuid.New(), Question: "Old question", IsActive: false},
					}},
					{ID: uuid.New(), Name: "retired", IsActive: false},
				},
				Customers: []*accounts.Customer{
					{ID: uuid.New(), Email: "visitor@example.com", IsActive: true, ChatRooms: []*accounts.ChatRoom{room, closedRoom}},
					{ID: uuid.New(), Email: "gone@example.com", IsActive: false},
				},
			},
			{ID: uuid.New(), Name: "hidden.io", IsActive: false, CreatedAt: base.Add(time.Hour)},
		},
		messages: map[uuid.UUID][]*accounts.Message{
			room.ID: {{ID: uuid.New(), Content: "hello", CreatedAt: base}},
		},
	}

	svc := accounts.NewGraphService(stores.Users(), graphs, accounts.WithGraphLogger(nopLogger{}))
	graph, err := svc.LoadUserGraph(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, user.ID, graph.ID)
	assert.Equal(t, accounts.RoleOwner, graph.Role)
	require.Len(t, graph.Domains, 1)

	domain := graph.Domains[0]
	assert.Equal(t, "shop.io", domain.Name)
	require.Len(t, domain.ChatBots, 1)
	assert.Equal(t, "helper", domain.ChatBots[0].Name)
	require.Len(t, domain.ChatBots[0].FilteredQuestions, 1)
	require.Len(t, domain.Customers, 1)
	require.Len(t, domain.Customers[0].ChatRooms, 1)
	assert.Len(t, domain.Customers[0].ChatRooms[0].Messages, 1)

	assert.Equal(t, accounts.GraphSummary{Domains: 1, ChatBots: 1, Customers: 1, ChatRooms: 1}, graph.Summary())
}

func TestGraphService_RecentMessagesBounded(t *testing.T) {
	stores := setupStores(t)
	user := seedUser(t, stores, "ext_graph", accounts.UserTypeOwner)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	room := &accounts.ChatRoom{ID: uuid.New(), IsActive: true}
	var msgs []*accounts.Message
	for i := 0; i < 15; i++ {
		msgs = append(msgs, &accounts.Message{
			ID:        uuid.New(),
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	graphs := &fakeGraphs{
		domains: []*accounts.Domain{{
			ID: uuid.New(), Name: "shop.io", IsActive: true, CreatedAt: base,
			Customers: []*accounts.Customer{{ID: uuid.New(), IsActive: true, ChatRooms: []*accounts.ChatRoom{room}}},
		}},
		messages: map[uuid.UUID][]*accounts.Message{room.ID: msgs},
	}

	svc := accounts.NewGraphService(stores.Users(), graphs, accounts.WithGraphLogger(nopLogger{}))
	graph, err := svc.LoadUserGraph(context.Background(), user.ID)
	require.NoError(t, err)

	got := graph.Domains[0].Customers[0].ChatRooms[0].Messages
	require.Len(t, got, accounts.DefaultMessagesPerRoom)
	assert.Equal(t, "message 14", got[0].Content)
	assert.Equal(t, "message 5", got[len(got)-1].Content)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].CreatedAt.After(got[i].CreatedAt))
	}

	svc = accounts.NewGraphService(stores.Users(), graphs, accounts.WithMessagesPerRoom(3), accounts.WithMessageFanOut(1))
	graph, err = svc.LoadUserGraph(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, graph.Domains[0].Customers[0].ChatRooms[0].Messages, 3)
}

func TestGraphService_MessageTiesBrokenByID(t *testing.T) {
	stores := setupStores(t)
	user := seedUser(t, stores, "ext_graph", accounts.UserTypeOwner)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	msgs := []*accounts.Message{
		{ID: high, Content: "tie-high", CreatedAt: base},
		{ID: low, Content: "tie-low", CreatedAt: base},
	}
	for i := 1; i <= 9; i++ {
		msgs = append(msgs, &accounts.Message{
			ID:        uuid.New(),
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	room := &accounts.ChatRoom{ID: uuid.New(), IsActive: true}
	graphs := &fakeGraphs{
		domains: []*accounts.Domain{{
			ID: uuid.New(), Name: "shop.io", IsActive: true, CreatedAt: base,
			Customers: []*accounts.Customer{{ID: uuid.New(), IsActive: true, ChatRooms: []*accounts.ChatRoom{room}}},
		}},
		messages: map[uuid.UUID][]*accounts.Message{room.ID: msgs},
	}

	svc := accounts.NewGraphService(stores.Users(), graphs, accounts.WithGraphLogger(nopLogger{}))
	graph, err := svc.LoadUserGraph(context.Background(), user.ID)
	require.NoError(t, err)

	got := graph.Domains[0].Customers[0].ChatRooms[0].Messages
	require.Len(t, got, accounts.DefaultMessagesPerRoom)
	assert.Equal(t, "message 9", got[0].Content)
	assert.Equal(t, "tie-low", got[len(got)-1].Content)
}

func TestGraphService_DomainOrder(t *testing.T) {
	stores := setupStores(t)
	user := seedUser(t, stores, "ext_graph", accounts.UserTypeOwner)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	graphs := &fakeGraphs{domains: []*accounts.Domain{
		{ID: uuid.New(), Name: "oldest", IsActive: true, CreatedAt: base},
		{ID: high, Name: "tie-high", IsActive: true, CreatedAt: base.Add(time.Hour)},
		{ID: low, Name: "tie-low", IsActive: true, CreatedAt: base.Add(time.Hour)},
		{ID: uuid.New(), Name: "newest", IsActive: true, CreatedAt: base.Add(2 * time.Hour)},
	}}

	svc := accounts.NewGraphService(stores.Users(), graphs, accounts.WithGraphLogger(nopLogger{}))
	graph, err := svc.LoadUserGraph(context.Background(), user.ID)
	require.NoError(t, err)

	var names []string
	for _, d := range graph.Domains {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"newest", "tie-low", "tie-high", "oldest"}, names)
}

func TestGraphService_NoDomains(t *testing.T) {
	stores := setupStores(t)
	user := seedUser(t, stores, "ext_graph", accounts.UserTypeIndividual)

	svc := accounts.NewGraphService(stores.Users(), &fakeGraphs{}, accounts.WithGraphLogger(nopLogger{}))
	graph, err := svc.LoadUserGraph(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotNil(t, graph.Domains)
	assert.Empty(t, graph.Domains)
	assert.Contains(t, mustJSON(t, graph), `"domains":[]`)
}

func TestGraphService_Errors(t *testing.T) {
	stores := setupStores(t)
	user := seedUser(t, stores, "ext_graph", accounts.UserTypeOwner)

	svc := accounts.NewGraphService(stores.Users(), &fakeGraphs{}, accounts.WithGraphLogger(nopLogger{}))
	_, err := svc.LoadUserGraph(context.Background(), uuid.New())
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeUserNotFound))

	svc = accounts.NewGraphService(stores.Users(), &fakeGraphs{err: errors.New("connection reset")}, accounts.WithGraphLogger(nopLogger{}))
	_, err = svc.LoadUserGraph(context.Background(), user.ID)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodePersistenceUnavailable))
}
