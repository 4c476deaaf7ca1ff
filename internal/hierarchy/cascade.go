package hierarchy

import (
	"context"
	"fmt"
)

// ImageDeleter removes a stored image by its public URL.
type ImageDeleter interface {
	DeleteImage(ctx context.Context, url string) error
}

// Tally counts what one cascade removed.
type Tally struct {
	Deleted map[Kind]int
	Events  int
}

// Devices returns the number of devices removed.
func (t Tally) Devices() int { return t.Deleted[KindDevice] }

// node is the part of a row the cascade needs before deleting it.
type node struct {
	ID     string
	Image  string
	Events int
}

// cascadeStore is the storage surface of the coordinator.
type cascadeStore interface {
	lookup(ctx context.Context, kind Kind, id, parentID string) (node, error)
	children(ctx context.Context, kind Kind, parentID string) ([]node, error)
	deleteScoped(ctx context.Context, kind Kind, id, parentID string) (int64, error)
	deleteChildren(ctx context.Context, kind Kind, parentID string) (int64, error)
}

// Coordinator deletes an entity together with its subtree and moves every
// surviving ancestor counter by what was removed.
//
// A delete is a sequence of statements, not a transaction. A storage
// failure part way returns the error and leaves already deleted rows
// deleted. An entity created under the subtree while it is being removed
// can survive as an orphan whose ancestor counters are not decremented.
type Coordinator struct {
	store    cascadeStore
	stats    *Stats
	topology Topology
	images   ImageDeleter
	logger   Logger
}

// NewCoordinator creates a cascade coordinator. images may be nil.
func NewCoordinator(db DB, topology Topology, stats *Stats, images ImageDeleter, logger Logger) *Coordinator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Coordinator{
		store:    sqlCascadeStore{db: db},
		stats:    stats,
		topology: topology,
		images:   images,
		logger:   logger,
	}
}

// Delete removes the entity of kind with id owned by parent.Parent(), then
// its subtree, then its images, then adjusts the counters of every hop of
// parent. It returns ErrNotFound, and touches nothing, when the entity is
// not owned by the path.
func (c *Coordinator) Delete(ctx context.Context, parent Path, kind Kind, id string) (Tally, error) {
	tally := Tally{Deleted: map[Kind]int{}}

	target, err := c.store.lookup(ctx, kind, id, parent.Parent())
	if err != nil {
		return tally, err
	}

	var children []node
	if childKind, ok := c.topology.Child(kind); ok {
		if children, err = c.store.children(ctx, childKind, id); err != nil {
			return tally, err
		}
	}

	n, err := c.store.deleteScoped(ctx, kind, id, parent.Parent())
	if err != nil {
		return tally, err
	}
	if n == 0 {
		return tally, ErrNotFound
	}

	images := []string{target.Image}
	tally.Deleted[kind]++
	tally.Events += target.Events

	if err := c.removeSubtree(ctx, kind, id, children, &tally, &images); err != nil {
		return tally, err
	}

	c.deleteImages(ctx, images)

	if err := c.stats.propagate(ctx, parent.Chain, kind, tally.Devices(), tally.Events, -1); err != nil {
		return tally, err
	}

	c.logger.Debug("subtree deleted",
		"kind", kind,
		"id", id,
		"devices", tally.Devices(),
		"events", tally.Events,
	)
	return tally, nil
}

// removeSubtree bulk-deletes the direct children of id, which were fetched
// before id itself was deleted, then descends into each of them.
func (c *Coordinator) removeSubtree(ctx context.Context, kind Kind, id string, children []node, tally *Tally, images *[]string) error {
	childKind, ok := c.topology.Child(kind)
	if !ok {
		return nil
	}

	if _, err := c.store.deleteChildren(ctx, childKind, id); err != nil {
		return err
	}
	for _, ch := range children {
		tally.Deleted[childKind]++
		tally.Events += ch.Events
		*images = append(*images, ch.Image)
	}

	grandKind, ok := c.topology.Child(childKind)
	if !ok {
		return nil
	}
	for _, ch := range children {
		grandchildren, err := c.store.children(ctx, grandKind, ch.ID)
		if err != nil {
			return err
		}
		if err := c.removeSubtree(ctx, childKind, ch.ID, grandchildren, tally, images); err != nil {
			return err
		}
	}
	return nil
}

// deleteImages is best effort: failures are logged and never returned.
func (c *Coordinator) deleteImages(ctx context.Context, urls []string) {
	if c.images == nil {
		return
	}
	for _, url := range urls {
		if url == "" {
			continue
		}
		if err := c.images.DeleteImage(ctx, url); err != nil {
			c.logger.Warn("image cleanup failed", "url", url, "error", err)
		}
	}
}

// sqlCascadeStore implements cascadeStore over the hierarchy tables.
type sqlCascadeStore struct {
	db DB
}

// nodeColumns selects id, image url and, for devices, the event count.
func nodeColumns(kind Kind) string {
	image := "''"
	if col := kind.ImageColumn(); col != "" {
		image = col
	}
	events := "0"
	if kind == KindDevice {
		events = "(SELECT COUNT(*) FROM events WHERE events.device_id = devices.id)"
	}
	return "id, " + image + ", " + events
}

func (s sqlCascadeStore) lookup(ctx context.Context, kind Kind, id, parentID string) (node, error) {
	var n node
	err := s.db.QueryRowContext(ctx,
		"SELECT "+nodeColumns(kind)+" FROM "+kind.Table()+" WHERE id = ? AND parent_id = ?",
		id, parentID).Scan(&n.ID, &n.Image, &n.Events)
	if err != nil {
		return node{}, notFoundOr(err, "loading %s %s", kind, id)
	}
	return n, nil
}

func (s sqlCascadeStore) children(ctx context.Context, kind Kind, parentID string) ([]node, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+nodeColumns(kind)+" FROM "+kind.Table()+" WHERE parent_id = ?", parentID)
	if err != nil {
		return nil, fmt.Errorf("listing %s children of %s: %w", kind, parentID, err)
	}
	defer rows.Close()

	var nodes []node
	for rows.Next() {
		var n node
		if err := rows.Scan(&n.ID, &n.Image, &n.Events); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", kind, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s sqlCascadeStore) deleteScoped(ctx context.Context, kind Kind, id, parentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+kind.Table()+" WHERE id = ? AND parent_id = ?", id, parentID)
	if err != nil {
		return 0, fmt.Errorf("deleting %s %s: %w", kind, id, err)
	}
	return res.RowsAffected()
}

func (s sqlCascadeStore) deleteChildren(ctx context.Context, kind Kind, parentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+kind.Table()+" WHERE parent_id = ?", parentID)
	if err != nil {
		return 0, fmt.Errorf("deleting %s children of %s: %w", kind, parentID, err)
	}
	return res.RowsAffected()
}
