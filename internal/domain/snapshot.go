package domain

import "time"

// Snapshot is the mirrored, locally queryable copy of the ledger-held
// marketplace state at a point in time. Maps are keyed by entity id and
// partitioned by kind. A Snapshot handed out by the mirror is a copy; the
// caller may read it without locking but must not assume it stays current.
type Snapshot struct {
	Listings map[uint64]Listing `json:"listings"`
	Auctions map[uint64]Auction `json:"auctions"`
	Offers   map[uint64]Offer   `json:"offers"`

	FeeBasisPoints int    `json:"fee_basis_points"` // [0, 10000]
	Paused         bool   `json:"paused"`
	ListingCounter uint64 `json:"listing_counter"`
	OfferCounter   uint64 `json:"offer_counter"`

	RefreshedAt time.Time `json:"refreshed_at"`
}

// NewSnapshot returns an empty snapshot with allocated maps.
func NewSnapshot() Snapshot {
	return Snapshot{
		Listings: make(map[uint64]Listing),
		Auctions: make(map[uint64]Auction),
		Offers:   make(map[uint64]Offer),
	}
}

// Clone returns a deep copy of the snapshot's maps. Entity values embed
// *big.Int amounts which are treated as immutable and shared.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Listings = make(map[uint64]Listing, len(s.Listings))
	for id, l := range s.Listings {
		out.Listings[id] = l
	}
	out.Auctions = make(map[uint64]Auction, len(s.Auctions))
	for id, a := range s.Auctions {
		out.Auctions[id] = a
	}
	out.Offers = make(map[uint64]Offer, len(s.Offers))
	for id, o := range s.Offers {
		out.Offers[id] = o
	}
	return out
}

// RefreshSubset names one independently refreshable part of the snapshot.
type RefreshSubset string

const (
	SubsetScalars  RefreshSubset = "scalars" // fee, paused, counters
	SubsetListings RefreshSubset = "listings"
	SubsetAuctions RefreshSubset = "auctions"
)

// RefreshReport records which subsets of a coordinated refresh succeeded.
// A failed subset keeps its previous snapshot data.
type RefreshReport struct {
	Refreshed []RefreshSubset          `json:"refreshed"`
	Failed    map[RefreshSubset]string `json:"failed,omitempty"`
	At        time.Time                `json:"at"`
}

// Complete reports whether every subset refreshed.
func (r RefreshReport) Complete() bool { return len(r.Failed) == 0 }

// RefreshEvent notifies subscribers that part of the snapshot changed.
type RefreshEvent struct {
	Kind EntityKind `json:"kind,omitempty"` // empty on a full refresh
	ID   uint64     `json:"id,omitempty"`
	Full bool       `json:"full"`
	At   time.Time  `json:"at"`
}
