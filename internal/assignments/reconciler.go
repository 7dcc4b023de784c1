package assignments

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbit-saas/settings-backend/internal/merger"
	"github.com/orbit-saas/settings-backend/internal/models"
	"github.com/orbit-saas/settings-backend/internal/registry"
)

// State names the reconciler's position in its gesture lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateDragging State = "dragging"
	StateSaving   State = "saving"
	StateFallback State = "fallback"
)

// MaxUndoDepth bounds the undo stack per session.
const MaxUndoDepth = 20

// Store is the persistence port the reconciler drives.
type Store interface {
	ListByOrgVertical(ctx context.Context, orgID uuid.UUID, verticalID string) ([]models.SectionAssignment, error)
	Upsert(ctx context.Context, orgID uuid.UUID, verticalID, departmentID string, section models.SectionID, displayOrder int, visible bool) error
	Delete(ctx context.Context, orgID uuid.UUID, verticalID, departmentID string) error
	DeleteAllForOrgVertical(ctx context.Context, orgID uuid.UUID, verticalID string) (int, error)
}

// Notifier publishes a change event after every persisted mutation so other
// sessions can reload. The originating session id lets them skip their own
// writes.
type Notifier interface {
	AssignmentsChanged(orgID uuid.UUID, verticalID string, originSession uuid.UUID)
}

// DropTarget is where a dragged department lands: a section (append at end)
// or another department's position (that department's section, at its
// current order).
type DropTarget struct {
	SectionID    *models.SectionID `json:"section_id,omitempty"`
	DepartmentID *string           `json:"department_id,omitempty"`
}

// rowState captures one department's persisted assignment, nil-able for
// "no row existed".
type rowState struct {
	section models.SectionID
	order   int
	visible bool
}

// undoEntry is one reversible persisted move.
type undoEntry struct {
	departmentID string
	prev         *rowState                   // nil: department had no assignment row
	sections     models.SectionedDepartments // local view before the move
}

// Reconciler is a long-lived per-session controller translating drag
// gestures into assignment mutations. One gesture is active at a time,
// enforced by the state machine.
type Reconciler struct {
	mu       sync.Mutex
	store    Store
	notifier Notifier
	logger   *zap.Logger

	orgID     uuid.UUID
	vertical  *registry.Vertical
	sessionID uuid.UUID

	state        State
	sections     models.SectionedDepartments
	dragging     string // department id while in StateDragging
	dragSnapshot models.SectionedDepartments
	undo         []undoEntry // most-recent-first
}

// NewReconciler creates a reconciler in idle state with no data loaded.
// Call Reload before using it.
func NewReconciler(store Store, notifier Notifier, logger *zap.Logger, orgID uuid.UUID, vertical *registry.Vertical, sessionID uuid.UUID) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		notifier:  notifier,
		logger:    logger,
		orgID:     orgID,
		vertical:  vertical,
		sessionID: sessionID,
		state:     StateIdle,
		sections:  merger.Merge(vertical, nil),
	}
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SessionID returns the owning session.
func (r *Reconciler) SessionID() uuid.UUID { return r.sessionID }

// Sections returns a copy of the current merged view.
func (r *Reconciler) Sections() models.SectionedDepartments {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copySections(r.sections)
}

// Reload fetches assignments and rebuilds the merged view. A schema-absence
// or permission failure enters fallback mode; a transient failure returns
// to idle with stale data retained and surfaces the error.
func (r *Reconciler) Reload(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateDragging || r.state == StateSaving {
		r.mu.Unlock()
		return ErrBadGesture
	}
	r.state = StateLoading
	r.mu.Unlock()

	rows, err := r.store.ListByOrgVertical(ctx, r.orgID, r.vertical.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrSchemaUnavailable) {
			r.state = StateFallback
			r.logger.Warn("assignments unavailable, entering fallback",
				zap.String("organization_id", r.orgID.String()),
				zap.String("vertical_id", r.vertical.ID),
				zap.Error(err))
			return nil
		}
		r.state = StateIdle
		return err
	}
	r.sections = merger.Merge(r.vertical, rows)
	r.state = StateIdle
	return nil
}

// CheckAgain re-probes the store from fallback mode. No-op in other states.
func (r *Reconciler) CheckAgain(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateFallback {
		r.mu.Unlock()
		return nil
	}
	r.state = StateIdle
	r.mu.Unlock()
	return r.Reload(ctx)
}

// BeginDrag starts a gesture for a department, snapshotting the pre-drag
// view for cancel and undo.
func (r *Reconciler) BeginDrag(departmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateFallback {
		return ErrFallback
	}
	if r.state != StateIdle {
		return ErrBadGesture
	}
	if r.findItem(departmentID) == nil {
		return errors.New("unknown department " + departmentID)
	}
	r.dragging = departmentID
	r.dragSnapshot = copySections(r.sections)
	r.state = StateDragging
	return nil
}

// CancelDrag abandons the gesture and restores the pre-drag snapshot. No
// remote call is made.
func (r *Reconciler) CancelDrag() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateDragging {
		return
	}
	r.sections = r.dragSnapshot
	r.dragSnapshot = nil
	r.dragging = ""
	r.state = StateIdle
}

// Drop completes the gesture onto target. A drop with no active drag is a
// defensive no-op. The moved department's new (section, display_order) is
// written to the store; local state updates optimistically and reverts on
// failure.
func (r *Reconciler) Drop(ctx context.Context, target DropTarget) error {
	r.mu.Lock()
	if r.state != StateDragging {
		r.mu.Unlock()
		return nil
	}
	deptID := r.dragging
	snapshot := r.dragSnapshot
	r.dragging = ""
	r.dragSnapshot = nil

	section, order, index, ok := r.resolveTarget(deptID, target)
	if !ok {
		// drop onto nothing: restore and bail, no remote call
		r.sections = snapshot
		r.state = StateIdle
		r.mu.Unlock()
		return nil
	}

	prev := r.currentRowState(deptID)
	r.applyMove(deptID, section, order, index)
	r.state = StateSaving
	item := r.findItem(deptID)
	visible := item.Visible
	r.mu.Unlock()

	err := r.store.Upsert(ctx, r.orgID, r.vertical.ID, deptID, section, order, visible)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.sections = snapshot
		if errors.Is(err, ErrSchemaUnavailable) {
			r.state = StateFallback
			return ErrFallback
		}
		r.state = StateIdle
		return err
	}
	r.pushUndo(undoEntry{departmentID: deptID, prev: prev, sections: snapshot})
	r.state = StateIdle
	r.notifyChanged()
	return nil
}

// Undo reverts the most recent persisted move. No-op when the stack is
// empty.
func (r *Reconciler) Undo(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateFallback {
		r.mu.Unlock()
		return ErrFallback
	}
	if r.state != StateIdle || len(r.undo) == 0 {
		r.mu.Unlock()
		return nil
	}
	entry := r.undo[0]
	r.undo = r.undo[1:]
	r.state = StateSaving
	r.mu.Unlock()

	var err error
	if entry.prev == nil {
		err = r.store.Delete(ctx, r.orgID, r.vertical.ID, entry.departmentID)
	} else {
		err = r.store.Upsert(ctx, r.orgID, r.vertical.ID, entry.departmentID,
			entry.prev.section, entry.prev.order, entry.prev.visible)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		// keep the entry so the user can retry
		r.undo = append([]undoEntry{entry}, r.undo...)
		if errors.Is(err, ErrSchemaUnavailable) {
			r.state = StateFallback
			return ErrFallback
		}
		r.state = StateIdle
		return err
	}
	r.sections = entry.sections
	r.state = StateIdle
	r.notifyChanged()
	return nil
}

// SetVisibility toggles a department's visibility, creating its assignment
// row if needed. Keeps current section and order.
func (r *Reconciler) SetVisibility(ctx context.Context, departmentID string, visible bool) error {
	r.mu.Lock()
	if r.state == StateFallback {
		r.mu.Unlock()
		return ErrFallback
	}
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrBadGesture
	}
	item := r.findItem(departmentID)
	if item == nil {
		r.mu.Unlock()
		return errors.New("unknown department " + departmentID)
	}
	section, order := item.SectionID, item.DisplayOrder
	snapshot := copySections(r.sections)
	r.setItemVisible(departmentID, visible)
	r.state = StateSaving
	r.mu.Unlock()

	err := r.store.Upsert(ctx, r.orgID, r.vertical.ID, departmentID, section, order, visible)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.sections = snapshot
		if errors.Is(err, ErrSchemaUnavailable) {
			r.state = StateFallback
			return ErrFallback
		}
		r.state = StateIdle
		return err
	}
	r.state = StateIdle
	r.notifyChanged()
	return nil
}

// Reset bulk-deletes all assignment rows for the pair and reloads,
// equivalent to merging with no assignments. Clears the undo stack: its
// snapshots describe positions that no longer exist.
func (r *Reconciler) Reset(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateFallback {
		r.mu.Unlock()
		return ErrFallback
	}
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrBadGesture
	}
	r.state = StateSaving
	r.mu.Unlock()

	_, err := r.store.DeleteAllForOrgVertical(ctx, r.orgID, r.vertical.ID)

	r.mu.Lock()
	if err != nil {
		if errors.Is(err, ErrSchemaUnavailable) {
			r.state = StateFallback
			r.mu.Unlock()
			return ErrFallback
		}
		r.state = StateIdle
		r.mu.Unlock()
		return err
	}
	r.undo = nil
	r.state = StateIdle
	r.notifyChanged()
	r.mu.Unlock()
	return r.Reload(ctx)
}

// UndoDepth returns the number of undoable moves.
func (r *Reconciler) UndoDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.undo)
}

// --- internals (callers hold r.mu unless noted) ---

func (r *Reconciler) notifyChanged() {
	if r.notifier != nil {
		r.notifier.AssignmentsChanged(r.orgID, r.vertical.ID, r.sessionID)
	}
}

func (r *Reconciler) findItem(departmentID string) *models.DepartmentItem {
	for s := range r.sections {
		items := r.sections[s]
		for i := range items {
			if items[i].DepartmentID == departmentID {
				return &items[i]
			}
		}
	}
	return nil
}

func (r *Reconciler) currentRowState(departmentID string) *rowState {
	item := r.findItem(departmentID)
	if item == nil || !item.Assigned {
		return nil
	}
	return &rowState{section: item.SectionID, order: item.DisplayOrder, visible: item.Visible}
}

// resolveTarget maps a drop target to (section, display order, insert index).
func (r *Reconciler) resolveTarget(deptID string, target DropTarget) (models.SectionID, int, int, bool) {
	if target.DepartmentID != nil && *target.DepartmentID != "" && *target.DepartmentID != deptID {
		t := r.findItem(*target.DepartmentID)
		if t == nil {
			return "", 0, 0, false
		}
		idx := r.indexInSection(t.SectionID, *target.DepartmentID)
		return t.SectionID, t.DisplayOrder, idx, true
	}
	if target.SectionID != nil && models.ValidSection(*target.SectionID) {
		items := r.sections[*target.SectionID]
		order := 0
		if n := len(items); n > 0 {
			order = items[n-1].DisplayOrder + 1
		}
		return *target.SectionID, order, len(items), true
	}
	return "", 0, 0, false
}

func (r *Reconciler) indexInSection(section models.SectionID, departmentID string) int {
	for i, item := range r.sections[section] {
		if item.DepartmentID == departmentID {
			return i
		}
	}
	return len(r.sections[section])
}

// applyMove updates the local view: removes the department from its section
// and inserts it at index in the target section with the new order.
func (r *Reconciler) applyMove(departmentID string, section models.SectionID, order, index int) {
	var moved models.DepartmentItem
	for s, items := range r.sections {
		for i := range items {
			if items[i].DepartmentID == departmentID {
				moved = items[i]
				if s == section && i < index {
					index-- // removal shifts the insert point
				}
				r.sections[s] = append(items[:i:i], items[i+1:]...)
				goto found
			}
		}
	}
found:
	moved.SectionID = section
	moved.DisplayOrder = order
	moved.Assigned = true
	items := r.sections[section]
	if index < 0 {
		index = 0
	}
	if index > len(items) {
		index = len(items)
	}
	items = append(items, models.DepartmentItem{})
	copy(items[index+1:], items[index:])
	items[index] = moved
	r.sections[section] = items
}

func (r *Reconciler) setItemVisible(departmentID string, visible bool) {
	for s, items := range r.sections {
		for i := range items {
			if items[i].DepartmentID == departmentID {
				items[i].Visible = visible
				items[i].Assigned = true
				r.sections[s] = items
				return
			}
		}
	}
}

func (r *Reconciler) pushUndo(entry undoEntry) {
	r.undo = append([]undoEntry{entry}, r.undo...)
	if len(r.undo) > MaxUndoDepth {
		r.undo = r.undo[:MaxUndoDepth]
	}
}

func copySections(s models.SectionedDepartments) models.SectionedDepartments {
	out := make(models.SectionedDepartments, len(s))
	for k, items := range s {
		copied := make([]models.DepartmentItem, len(items))
		copy(copied, items)
		out[k] = copied
	}
	return out
}
