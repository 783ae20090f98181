package mvcc

import (
	"github.com/dreamware/rowcache/internal/schema"
)

// Version is one layer of a partition's accumulated mutations. The chain is
// traversed newest-to-oldest via Next; Prev points the other way, toward
// whichever Version is the current head.
type Version struct {
	prev, next *Version
	backref    *VersionRef
	partition  *schema.PartitionData
}

func newVersion(p *schema.PartitionData) *Version {
	return &Version{partition: p}
}

// Partition returns the data held at this layer of the chain.
func (v *Version) Partition() *schema.PartitionData { return v.partition }

// Prev returns the next-newer version (nil if v is the head).
func (v *Version) Prev() *Version { return v.prev }

// Next returns the next-older version (nil if v is the tail).
func (v *Version) Next() *Version { return v.next }

// IsReferenced reports whether some VersionRef (an Entry's head slot or a
// detached Snapshot) currently points at v.
func (v *Version) IsReferenced() bool { return v.backref != nil }

// IsReferencedFromEntry reports whether v is referenced and is the head of
// its chain (no predecessor) and that reference is not a unique-owner
// hand-off, i.e. an Entry is genuinely still using v as its live head.
func (v *Version) IsReferencedFromEntry() bool {
	return v.prev == nil && v.backref != nil && !v.backref.uniqueOwner
}

// InsertBefore splices v into the chain immediately ahead of at, so v
// becomes at's new predecessor (the new head, if at was the head).
func InsertBefore(at, v *Version) {
	v.prev = at.prev
	v.next = at
	if at.prev != nil {
		at.prev.next = v
	}
	at.prev = v
}

func detachVersion(v *Version) {
	if v.prev != nil {
		v.prev.next = v.next
	}
	if v.next != nil {
		v.next.prev = v.prev
	}
	v.prev, v.next = nil, nil
}

// VersionRef is the single back-reference slot by which an Entry or a
// Snapshot owns a Version. Constructing one panics if the target already has
// an owner, enforcing the single-backref invariant at the point of creation;
// handing a reference from one owner to another is done by moving the
// *VersionRef itself (see Entry.setVersion), never by constructing a second
// one pointed at the same Version.
type VersionRef struct {
	version     *Version
	uniqueOwner bool
}

// NewVersionRef creates an owning reference to v. Panics if v already has an
// owner; callers transfer existing ownership by reassigning the *VersionRef
// value, not by calling this again on an already-owned version.
func NewVersionRef(v *Version) *VersionRef {
	if v.backref != nil {
		panic("mvcc: version already has an owner")
	}
	ref := &VersionRef{version: v}
	v.backref = ref
	return ref
}

// Version returns the referenced version, or nil if the ref has been cleared.
func (r *VersionRef) Version() *Version {
	if r == nil {
		return nil
	}
	return r.version
}

// IsValid reports whether the ref still points at a version.
func (r *VersionRef) IsValid() bool { return r != nil && r.version != nil }

// IsUniqueOwner reports whether this ref has been marked as the sole
// remaining owner of its chain (set when the Entry that used to share
// ownership with this ref's holder has gone away).
func (r *VersionRef) IsUniqueOwner() bool { return r != nil && r.uniqueOwner }

// MarkUniqueOwner records that r is now the only thing keeping its chain
// alive, so destroying r's holder must free the whole chain rather than
// merely clearing the back-reference.
func (r *VersionRef) MarkUniqueOwner() { r.uniqueOwner = true }

// Clear detaches r from its version, if any, leaving the version
// unreferenced.
func (r *VersionRef) Clear() {
	if r == nil || r.version == nil {
		return
	}
	r.version.backref = nil
	r.version = nil
}

// RowObserver is the narrow, consumer-defined collaborator notified as rows
// leave a version chain forever, so that an LRU (internal/cachetracker)
// can unlink whatever it was tracking for them without mvcc importing the
// tracker package.
type RowObserver interface {
	OnRowRemoved(row *schema.RowEntry)
}

// removeOrMarkAsUniqueOwner walks current and every successor, freeing each
// one as long as it is unreferenced, notifying observer of every row that
// leaves for good. It stops at the first version some other owner still
// points to and marks that owner as the chain's sole remaining reference
// (mirroring partition_version::remove_or_mark_as_unique_owner).
func removeOrMarkAsUniqueOwner(current *Version, observer RowObserver) {
	for current != nil && !current.IsReferenced() {
		if observer != nil {
			for _, row := range current.Partition().Rows {
				observer.OnRowRemoved(row)
			}
		}
		next := current.next
		current.next = nil
		if next != nil {
			next.prev = nil
		}
		current = next
	}
	if current != nil {
		current.backref.MarkUniqueOwner()
	}
}
