// Package store provides persistent storage for fan clubs using SQLite.
//
// # Architecture
//
// All reads and writes go through a unit of work. SQLiteStore.WithTx and
// SQLiteStore.View open a transaction and hand the caller a *Tx; every entity
// method lives on Tx, so a manager operation that touches clubs, memberships
// and posts commits or aborts as one.
//
// The pool holds a single connection, so transactions inside one process are
// serialized. A callback must never call WithTx or View again: the nested
// call would wait for the connection it is already holding.
//
// # Data Models
//
//   - Club: community with an owner, a status and a denormalized member_count
//   - Membership: (club_id, principal_id) row with a Role and a status
//   - Post: feed entry with images and a denormalized like_count
//   - post_likes: (post_id, principal_id) existence rows
//   - AuditEntry: one row per successful mutation
//
// # Constraints
//
// Invariants are backed by the schema rather than by read-then-write checks:
//
//   - memberships primary key: one row per principal per club
//   - idx_memberships_single_owner: one active owner per club
//   - idx_clubs_owner_name_active: one active club per name per owner
//   - post_likes primary key: one like per principal per post
//
// Violations surface as ErrConstraint; lock timeouts surface as ErrBusy.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// The pure Go driver (modernc.org/sqlite) is the default. Open with
// Options{Driver: DriverCGO} to use github.com/mattn/go-sqlite3.
//
// # Migrations
//
// Schema creation is idempotent. Columns added after the first release are
// applied by runMigrations after checking pragma_table_info.
package store
