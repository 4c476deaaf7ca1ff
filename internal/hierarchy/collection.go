package hierarchy

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/facility-core/internal/infrastructure/objectstore"
	"github.com/nerrad567/facility-core/internal/pagination"
)

// searchColumn is matched by the search query parameter at every level.
const searchColumn = "name"

// ImageStore uploads and removes entity images.
type ImageStore interface {
	ImageDeleter
	UploadImage(ctx context.Context, ownerKey, folder string, file objectstore.Upload) (string, error)
}

// Collection is the scoped CRUD surface of one hierarchy level. Every
// operation first verifies the ancestor chain for the principal; ancestors
// are the ids from the root kind down to the entity's parent.
type Collection[T any] struct {
	def      *tableDef[T]
	db       DB
	resolver *Resolver
	stats    *Stats
	cascade  *Coordinator
	images   ImageStore
	logger   Logger
	now      func() time.Time
	// populate expands references on listed entities. Optional; the
	// relations it understands are listed in populates.
	populate  func(ctx context.Context, items []T, opts pagination.Options) error
	populates []string
}

// Kind returns the level served by the collection.
func (c *Collection[T]) Kind() Kind { return c.def.kind }

// Create validates entity, verifies the parent chain, inserts the entity
// under it and bumps the ancestor counters.
func (c *Collection[T]) Create(ctx context.Context, principal Principal, ancestors []string, entity *T) (*T, error) {
	if err := c.def.validate(entity); err != nil {
		return nil, err
	}
	parent, err := c.resolver.ResolveParent(ctx, principal, c.def.kind, ancestors)
	if err != nil {
		return nil, err
	}
	return c.insert(ctx, parent, entity)
}

// insert stores entity under an already resolved parent.
func (c *Collection[T]) insert(ctx context.Context, parent Path, entity *T) (*T, error) {
	c.def.prepare(entity, parent)
	base := c.def.base(entity)
	now := c.timestamp()
	base.ID = uuid.NewString()
	base.ParentID = parent.Parent()
	base.CreatedAt, base.UpdatedAt = now, now

	values, err := c.def.values(entity)
	if err != nil {
		return nil, err
	}
	query := "INSERT INTO " + c.def.kind.Table() + " (" + strings.Join(c.def.columns, ", ") +
		") VALUES (" + placeholders(len(c.def.columns)) + ")"
	if _, err := c.db.ExecContext(ctx, query, values...); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s already exists", ErrConflict, c.def.kind)
		}
		return nil, fmt.Errorf("inserting %s: %w", c.def.kind, err)
	}

	devices := 0
	if c.def.kind == KindDevice {
		devices = 1
	}
	if err := c.stats.propagate(ctx, parent.Chain, c.def.kind, devices, 0, 1); err != nil {
		return nil, err
	}

	c.logger.Debug("entity created", "kind", c.def.kind, "id", base.ID, "parent", base.ParentID)
	return entity, nil
}

// List pages through the children of the resolved parent. A non-empty
// search ranks results by fuzzy relevance on the name.
func (c *Collection[T]) List(ctx context.Context, principal Principal, ancestors []string, search string, opts pagination.Options) (*pagination.Page[T], error) {
	parent, err := c.resolver.ResolveParent(ctx, principal, c.def.kind, ancestors)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, "parent_id = ?", parent.Parent(), search, opts)
}

func (c *Collection[T]) list(ctx context.Context, where string, arg any, search string, opts pagination.Options) (*pagination.Page[T], error) {
	if path, ok := opts.UnknownPopulate(c.populates...); ok {
		return nil, fmt.Errorf("%w: %s cannot populate %q", ErrValidation, c.def.kind, path)
	}
	q := pagination.Query{
		Table:    c.def.kind.Table(),
		Columns:  c.def.columns,
		Where:    where,
		Args:     []any{arg},
		Sortable: c.def.sortable,
	}
	page, err := pagination.PaginateSearch(ctx, c.db, q, pagination.Search{Column: searchColumn, Term: search}, opts, c.def.scan)
	if err != nil {
		return nil, err
	}
	if c.populate != nil && len(opts.Populate) > 0 {
		if err := c.populate(ctx, page.Results, opts); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// Get returns the entity if the whole chain resolves for the principal.
func (c *Collection[T]) Get(ctx context.Context, principal Principal, ancestors []string, id string) (*T, error) {
	if err := validateID(c.def.kind, id); err != nil {
		return nil, err
	}
	parent, err := c.resolver.ResolveParent(ctx, principal, c.def.kind, ancestors)
	if err != nil {
		return nil, err
	}
	return c.load(ctx, id, parent.Parent())
}

// Update applies a partial update to the entity. Ids, counters and images
// cannot be patched. Applying the same patch twice yields the same state.
func (c *Collection[T]) Update(ctx context.Context, principal Principal, ancestors []string, id string, patch Patch) (*T, error) {
	if err := validateID(c.def.kind, id); err != nil {
		return nil, err
	}
	// Reject unknown fields and bad types before touching storage.
	var probe T
	if err := patch.apply(c.def.kind, c.def.patch(&probe)); err != nil {
		return nil, err
	}

	parent, err := c.resolver.ResolveParent(ctx, principal, c.def.kind, ancestors)
	if err != nil {
		return nil, err
	}
	entity, err := c.load(ctx, id, parent.Parent())
	if err != nil {
		return nil, err
	}
	if err := patch.apply(c.def.kind, c.def.patch(entity)); err != nil {
		return nil, err
	}
	if err := c.def.validate(entity); err != nil {
		return nil, err
	}
	c.def.base(entity).UpdatedAt = c.timestamp()

	values, err := c.def.values(entity)
	if err != nil {
		return nil, err
	}
	var sets []string
	var args []any
	for i, col := range c.def.columns {
		if col == "updated_at" || slices.Contains(c.def.mutable, col) {
			sets = append(sets, col+" = ?")
			args = append(args, values[i])
		}
	}
	args = append(args, id, parent.Parent())

	query := "UPDATE " + c.def.kind.Table() + " SET " + strings.Join(sets, ", ") + " WHERE id = ? AND parent_id = ?"
	if err := c.exec(ctx, query, args...); err != nil {
		return nil, err
	}
	return entity, nil
}

// Delete removes the entity and its subtree. See Coordinator.Delete.
func (c *Collection[T]) Delete(ctx context.Context, principal Principal, ancestors []string, id string) (Tally, error) {
	if err := validateID(c.def.kind, id); err != nil {
		return Tally{}, err
	}
	parent, err := c.resolver.ResolveParent(ctx, principal, c.def.kind, ancestors)
	if err != nil {
		return Tally{}, err
	}
	return c.cascade.Delete(ctx, parent, c.def.kind, id)
}

// SetImage uploads the entity's logo, cover or diagram and stores its URL.
// The previous image is removed on a best-effort basis.
func (c *Collection[T]) SetImage(ctx context.Context, principal Principal, ancestors []string, id string, file objectstore.Upload) (*T, error) {
	column := c.def.kind.ImageColumn()
	if column == "" || c.def.setImage == nil {
		return nil, invalid("%s has no image", c.def.kind)
	}
	if err := validateID(c.def.kind, id); err != nil {
		return nil, err
	}
	parent, err := c.resolver.ResolveParent(ctx, principal, c.def.kind, ancestors)
	if err != nil {
		return nil, err
	}
	entity, err := c.load(ctx, id, parent.Parent())
	if err != nil {
		return nil, err
	}
	if c.images == nil {
		return nil, fmt.Errorf("%w: image storage not configured", ErrUpstream)
	}

	previous, err := c.imageURL(ctx, column, id)
	if err != nil {
		return nil, err
	}

	ownerKey := id
	if len(parent.Chain) > 0 {
		ownerKey = parent.Chain[0].ID
	}
	url, err := c.images.UploadImage(ctx, ownerKey, column+"s", file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	base := c.def.base(entity)
	base.UpdatedAt = c.timestamp()
	query := "UPDATE " + c.def.kind.Table() + " SET " + column + " = ?, updated_at = ? WHERE id = ? AND parent_id = ?"
	if err := c.exec(ctx, query, url, formatTime(base.UpdatedAt), id, parent.Parent()); err != nil {
		return nil, err
	}
	c.def.setImage(entity, url)

	if previous != "" {
		if err := c.images.DeleteImage(ctx, previous); err != nil {
			c.logger.Warn("previous image cleanup failed", "kind", c.def.kind, "id", id, "error", err)
		}
	}
	return entity, nil
}

func (c *Collection[T]) imageURL(ctx context.Context, column, id string) (string, error) {
	var url string
	err := c.db.QueryRowContext(ctx, "SELECT "+column+" FROM "+c.def.kind.Table()+" WHERE id = ?", id).Scan(&url)
	if err != nil {
		return "", notFoundOr(err, "loading %s image", c.def.kind)
	}
	return url, nil
}

// timestamp is the current time at storage precision.
func (c *Collection[T]) timestamp() time.Time {
	return c.now().UTC().Truncate(time.Microsecond)
}

// load fetches one entity scoped by its parent.
func (c *Collection[T]) load(ctx context.Context, id, parentID string) (*T, error) {
	query := "SELECT " + strings.Join(c.def.columns, ", ") + " FROM " + c.def.kind.Table() +
		" WHERE id = ? AND parent_id = ?"
	entity, err := c.def.scan(c.db.QueryRowContext(ctx, query, id, parentID))
	if err != nil {
		return nil, notFoundOr(err, "loading %s %s", c.def.kind, id)
	}
	return &entity, nil
}

// exec runs a scoped write and maps zero affected rows to ErrNotFound.
func (c *Collection[T]) exec(ctx context.Context, query string, args ...any) error {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s already exists", ErrConflict, c.def.kind)
		}
		return fmt.Errorf("updating %s: %w", c.def.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s: %w", c.def.kind, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
