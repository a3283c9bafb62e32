package services

import (
	"sort"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
)

// OfferQueue holds pending ride offers deduplicated by ride id. It is an
// unordered set: no priority among queued offers, the driver picks. Not
// safe for concurrent use; owned by the session loop.
type OfferQueue struct {
	offers map[string]model.RideOffer
}

func NewOfferQueue() *OfferQueue {
	return &OfferQueue{offers: make(map[string]model.RideOffer)}
}

// Offer inserts unless the ride id is already present. Duplicate network
// delivery of the same offer is a no-op, not an error.
func (q *OfferQueue) Offer(offer model.RideOffer) bool {
	if _, exists := q.offers[offer.RideID]; exists {
		return false
	}
	q.offers[offer.RideID] = offer
	return true
}

// Withdraw removes the offer if present.
func (q *OfferQueue) Withdraw(rideID string) bool {
	if _, exists := q.offers[rideID]; !exists {
		return false
	}
	delete(q.offers, rideID)
	return true
}

func (q *OfferQueue) Get(rideID string) (model.RideOffer, bool) {
	offer, ok := q.offers[rideID]
	return offer, ok
}

func (q *OfferQueue) Len() int {
	return len(q.offers)
}

// Clear drops every queued offer. Used when the driver goes offline or
// enters a ride.
func (q *OfferQueue) Clear() {
	q.offers = make(map[string]model.RideOffer)
}

// List returns the pending offers ordered by arrival for display.
func (q *OfferQueue) List() []model.RideOffer {
	list := make([]model.RideOffer, 0, len(q.offers))
	for _, offer := range q.offers {
		list = append(list, offer)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ReceivedAt.Equal(list[j].ReceivedAt) {
			return list[i].RideID < list[j].RideID
		}
		return list[i].ReceivedAt.Before(list[j].ReceivedAt)
	})
	return list
}
