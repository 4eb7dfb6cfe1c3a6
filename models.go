package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserType is the account type picked during registration
type UserType string

const (
	// UserTypeOwner owns domains and chatbots
	UserTypeOwner UserType = "owner"
	// UserTypeIndividual is a single customer account
	UserTypeIndividual UserType = "individual"
)

// Valid reports whether t is a known account type.
func (t UserType) Valid() bool {
	return t == UserTypeOwner || t == UserTypeIndividual
}

// Role derives the persisted role from the account type.
func (t UserType) Role() UserRole {
	if t == UserTypeOwner {
		return RoleOwner
	}
	return RoleCustomer
}

// UserRole is the user's role
type UserRole = string

const (
	// RoleOwner manages domains, chatbots and customers
	RoleOwner UserRole = "OWNER"
	// RoleCustomer is any non owner account
	RoleCustomer UserRole = "CUSTOMER"
)

// User is the local record bound to an external identity
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	FullName      string    `bun:"full_name,notnull" json:"fullName"`
	ExternalID    string    `bun:"external_id,notnull,unique" json:"externalId"`
	Type          UserType  `bun:"type,notnull" json:"type"`
	Email         string    `bun:"email,notnull" json:"email"`
	Role          UserRole  `bun:"role,notnull" json:"role"`
	IsActive      bool      `bun:"is_active,notnull" json:"isActive"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Domain is a customer facing site owned by a user
type Domain struct {
	bun.BaseModel `bun:"table:domains,alias:dom"`
	ID            uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID   `bun:"user_id,notnull,type:uuid" json:"userId"`
	Name          string      `bun:"name,notnull" json:"name"`
	Image         *string     `bun:"image" json:"image,omitempty"`
	IsActive      bool        `bun:"is_active,notnull" json:"isActive"`
	CreatedAt     time.Time   `bun:"created_at,notnull" json:"createdAt"`
	ChatBots      []*ChatBot  `bun:"rel:has-many,join:id=domain_id" json:"chatBots"`
	Customers     []*Customer `bun:"rel:has-many,join:id=domain_id" json:"customers"`
}

// ChatBot answers questions on a domain
type ChatBot struct {
	bun.BaseModel     `bun:"table:chat_bots,alias:bot"`
	ID                uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	DomainID          uuid.UUID           `bun:"domain_id,notnull,type:uuid" json:"domainId"`
	Name              string              `bun:"name,notnull" json:"name"`
	Description       *string             `bun:"description" json:"description,omitempty"`
	IsActive          bool                `bun:"is_active,notnull" json:"isActive"`
	CreatedAt         time.Time           `bun:"created_at,notnull" json:"-"`
	FilteredQuestions []*FilteredQuestion `bun:"rel:has-many,join:id=chat_bot_id" json:"filteredQuestions"`
}

// FilteredQuestion is a question a chatbot asks visitors
type FilteredQuestion struct {
	bun.BaseModel `bun:"table:filtered_questions,alias:fq"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ChatBotID     uuid.UUID `bun:"chat_bot_id,notnull,type:uuid" json:"-"`
	Question      string    `bun:"question,notnull" json:"question"`
	IsActive      bool      `bun:"is_active,notnull" json:"isActive"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"-"`
}

// Customer is a visitor captured by a domain
type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:cus"`
	ID            uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	DomainID      uuid.UUID   `bun:"domain_id,notnull,type:uuid" json:"domainId"`
	Email         string      `bun:"email,notnull" json:"email"`
	Name          *string     `bun:"name" json:"name,omitempty"`
	IsActive      bool        `bun:"is_active,notnull" json:"isActive"`
	CreatedAt     time.Time   `bun:"created_at,notnull" json:"-"`
	ChatRooms     []*ChatRoom `bun:"rel:has-many,join:id=customer_id" json:"chatRooms"`
}

// ChatRoom is a conversation between a customer and a domain
type ChatRoom struct {
	bun.BaseModel `bun:"table:chat_rooms,alias:room"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	CustomerID    uuid.UUID  `bun:"customer_id,notnull,type:uuid" json:"customerId"`
	IsActive      bool       `bun:"is_active,notnull" json:"isActive"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"-"`
	Messages      []*Message `bun:"rel:has-many,join:id=chat_room_id" json:"messages"`
}

// Message is immutable once created
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:msg"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ChatRoomID    uuid.UUID `bun:"chat_room_id,notnull,type:uuid" json:"-"`
	Content       string    `bun:"content,notnull" json:"content"`
	Image         *string   `bun:"image" json:"image,omitempty"`
	IsFromBot     bool      `bun:"is_from_bot,notnull" json:"isFromBot"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// UserGraph is a user with the active part of its domain graph
type UserGraph struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"fullName"`
	Type     UserType  `json:"type"`
	Email    string    `json:"email"`
	Role     UserRole  `json:"role"`
	Domains  []*Domain `json:"domains"`
}

// GraphSummary holds the dashboard counters for a user graph
type GraphSummary struct {
	Domains   int `json:"domains"`
	ChatBots  int `json:"chatBots"`
	Customers int `json:"customers"`
	ChatRooms int `json:"chatRooms"`
}

// Summary counts the entities of the graph.
func (g *UserGraph) Summary() GraphSummary {
	s := GraphSummary{}
	if g == nil {
		return s
	}

	s.Domains = len(g.Domains)
	for _, d := range g.Domains {
		s.ChatBots += len(d.ChatBots)
		s.Customers += len(d.Customers)
		for _, c := range d.Customers {
			s.ChatRooms += len(c.ChatRooms)
		}
	}
	return s
}
