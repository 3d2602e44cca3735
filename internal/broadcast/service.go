package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for broadcasts.
//
// Implementations must enforce workspace filtering and serialize concurrent
// status updates per broadcast (row lock or equivalent).
type Store interface {
	Insert(ctx context.Context, b Broadcast) error
	Get(ctx context.Context, workspaceID, id string) (Broadcast, error)
	List(ctx context.Context, workspaceID string) ([]Broadcast, error)
	Update(ctx context.Context, b Broadcast) error

	// SetStatus updates status only if the transition from the stored
	// status is legal. Returns ErrBadTransition otherwise.
	SetStatus(ctx context.Context, workspaceID, id string, to Status, now time.Time) (Broadcast, error)

	// ApplyCounterDelta atomically increments aggregate counters.
	ApplyCounterDelta(ctx context.Context, workspaceID, id string, d CounterDelta) error

	// SoftDelete marks the broadcast deleted without removing rows queue
	// items still reference.
	SoftDelete(ctx context.Context, workspaceID, id string, now time.Time) error
}

// Service owns broadcast CRUD and lifecycle rules. Counter updates from
// the dialer and outcome handler also flow through here.
type Service struct {
	store Store
	clock func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

type CreateRequest struct {
	WorkspaceID    string
	Name           string
	MessageText    string
	IVRMode        IVRMode
	DTMFActions    []DTMFAction
	CallsPerMinute int
	MaxAttempts    int
	CallingHours   CallingHours
	CallerID       CallerIDPolicy
	AMD            AMDPolicy
	Route          RoutePolicy
	Transfer       TransferTarget
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Broadcast, error) {
	now := s.clock().UTC()
	b := Broadcast{
		ID:             uuid.NewString(),
		WorkspaceID:    req.WorkspaceID,
		Name:           req.Name,
		Status:         StatusDraft,
		MessageText:    req.MessageText,
		IVRMode:        req.IVRMode,
		DTMFActions:    req.DTMFActions,
		CallsPerMinute: req.CallsPerMinute,
		MaxAttempts:    req.MaxAttempts,
		CallingHours:   req.CallingHours,
		CallerID:       req.CallerID,
		AMD:            req.AMD,
		Route:          req.Route,
		Transfer:       req.Transfer,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if b.IVRMode == "" {
		b.IVRMode = IVRModeDTMF
	}
	if b.CallerID.Mode == "" {
		b.CallerID.Mode = CallerIDAuto
	}
	if b.Route.Via == "" {
		b.Route.Via = RouteDirect
	}
	if err := b.Validate(); err != nil {
		return Broadcast{}, err
	}
	if err := s.store.Insert(ctx, b); err != nil {
		return Broadcast{}, err
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (Broadcast, error) {
	if workspaceID == "" || id == "" {
		return Broadcast{}, ErrInvalidArgument
	}
	return s.store.Get(ctx, workspaceID, id)
}

func (s *Service) List(ctx context.Context, workspaceID string) ([]Broadcast, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.List(ctx, workspaceID)
}

// UpdateSettings replaces mutable settings. Status and counters are not
// touched here; status goes through SetStatus, counters through
// ApplyCounterDelta.
func (s *Service) UpdateSettings(ctx context.Context, workspaceID, id string, req CreateRequest) (Broadcast, error) {
	if workspaceID == "" || id == "" {
		return Broadcast{}, ErrInvalidArgument
	}
	cur, err := s.store.Get(ctx, workspaceID, id)
	if err != nil {
		return Broadcast{}, err
	}

	cur.Name = req.Name
	cur.MessageText = req.MessageText
	cur.IVRMode = req.IVRMode
	cur.DTMFActions = req.DTMFActions
	cur.CallsPerMinute = req.CallsPerMinute
	cur.MaxAttempts = req.MaxAttempts
	cur.CallingHours = req.CallingHours
	cur.CallerID = req.CallerID
	cur.AMD = req.AMD
	cur.Route = req.Route
	cur.Transfer = req.Transfer
	cur.UpdatedAt = s.clock().UTC()

	if err := cur.Validate(); err != nil {
		return Broadcast{}, err
	}
	if err := s.store.Update(ctx, cur); err != nil {
		return Broadcast{}, err
	}
	return cur, nil
}

// SetAudio records the synthesized message audio reference.
func (s *Service) SetAudio(ctx context.Context, workspaceID, id, audioURL string) (Broadcast, error) {
	if workspaceID == "" || id == "" || audioURL == "" {
		return Broadcast{}, ErrInvalidArgument
	}
	cur, err := s.store.Get(ctx, workspaceID, id)
	if err != nil {
		return Broadcast{}, err
	}
	cur.AudioURL = audioURL
	cur.UpdatedAt = s.clock().UTC()
	if err := s.store.Update(ctx, cur); err != nil {
		return Broadcast{}, err
	}
	return cur, nil
}

func (s *Service) SetStatus(ctx context.Context, workspaceID, id string, to Status) (Broadcast, error) {
	if workspaceID == "" || id == "" {
		return Broadcast{}, ErrInvalidArgument
	}
	switch to {
	case StatusActive, StatusPaused, StatusCompleted:
	default:
		return Broadcast{}, ErrInvalidArgument
	}
	return s.store.SetStatus(ctx, workspaceID, id, to, s.clock().UTC())
}

func (s *Service) ApplyCounterDelta(ctx context.Context, workspaceID, id string, d CounterDelta) error {
	if workspaceID == "" || id == "" {
		return ErrInvalidArgument
	}
	return s.store.ApplyCounterDelta(ctx, workspaceID, id, d)
}

func (s *Service) SoftDelete(ctx context.Context, workspaceID, id string) error {
	if workspaceID == "" || id == "" {
		return ErrInvalidArgument
	}
	b, err := s.store.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if b.Status == StatusActive {
		return errors.New("broadcast: cannot delete an active broadcast")
	}
	return s.store.SoftDelete(ctx, workspaceID, id, s.clock().UTC())
}

// SetClock overrides the clock for deterministic tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }
