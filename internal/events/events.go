package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventNewBooking           = "new_booking"
	EventBookingStatusUpdated = "booking_status_updated"
	EventBookingCompleted     = "booking_completed"
	EventBookingRemoved       = "booking_removed"
	EventRideCancelled        = "ride_cancelled"
)

// UserTopic addresses one user's personal event stream.
func UserTopic(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// RideTopic addresses all listeners of one ride.
func RideTopic(rideID int64) string {
	return fmt.Sprintf("ride_%d", rideID)
}

// BookingEventPayload is the booking snapshot delivered to event consumers.
type BookingEventPayload struct {
	BookingID        int64     `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	RideID           int64     `json:"ride_id"`
	RiderID          int64     `json:"rider_id"`
	Seats            int64     `json:"seats"`
	TotalPrice       float64   `json:"total_price"`
	Status           string    `json:"status"`
	PaymentStatus    string    `json:"payment_status"`
	Reason           string    `json:"reason,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// RideEventPayload is the ride snapshot delivered to event consumers.
type RideEventPayload struct {
	RideID         int64     `json:"ride_id"`
	ProviderID     int64     `json:"provider_id"`
	PickupLocation string    `json:"pickup_location"`
	Destination    string    `json:"destination"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Event is a single addressed real-time message.
type Event struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Name      string    `json:"event"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Handler reacts to an event. Handlers run synchronously on the publisher's
// goroutine; a handler error never stops delivery to its siblings.
type Handler func(event *Event) error

// Bus provides in-process topic-based pub/sub.
type Bus struct {
	subscribers map[string][]Handler
	wildcard    []Handler
	mu          sync.RWMutex
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for one topic.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// SubscribeAll registers a handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// Publish delivers the event to topic and wildcard subscribers.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Topic]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// NewEvent builds an addressed event with a JSON payload.
func NewEvent(topic, name string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Name:      name,
		Payload:   raw,
		CreatedAt: time.Now(),
	}, nil
}
