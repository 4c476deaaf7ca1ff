// Package hierarchy implements the tenant-scoped ownership tree
// organization > site > building > floor > room > device.
//
// Every request names its target by the chain of ancestor ids from the
// root down. The Resolver walks that chain hop by hop, checking that each
// entity is owned by the previous one and the root by the principal; any
// broken hop is reported as ErrNotFound so callers can't probe other
// tenants' ids.
//
// Parents carry denormalized counters (siteCount, buildingCount,
// floorCount, roomCount, deviceCount, pointsCount). They are never
// recomputed on read: creates and deletes adjust them with relative
// single-statement updates through Stats. Deleting an entity runs the
// Coordinator, which removes the whole subtree level by level, cleans up
// images best effort, then moves every surviving ancestor counter by the
// number of removed descendants.
//
// The root is configurable. With NewTopology(KindSite) sites are owned
// directly by principals and organizations don't exist.
//
// Usage:
//
//	svc := hierarchy.NewService(db, hierarchy.Options{
//	    Topology: hierarchy.MustTopology(hierarchy.KindOrganization),
//	    Images:   store,
//	    Logger:   logger,
//	})
//	room, err := svc.Rooms.Get(ctx, principal, []string{orgID, siteID, buildingID, floorID}, roomID)
package hierarchy
