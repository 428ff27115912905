package domain

// EntityStatus is the lifecycle state of an entity
type EntityStatus string

const (
	StatusDraft     EntityStatus = "draft"
	StatusPublished EntityStatus = "published"
	StatusModified  EntityStatus = "modified"  // Published, with a newer unpublished version
	StatusWithdrawn EntityStatus = "withdrawn" // Was published, then unpublished
	StatusArchived  EntityStatus = "archived"
	StatusDeleted   EntityStatus = "deleted" // Terminal tombstone
)

// ParseEntityStatus validates a status string
func ParseEntityStatus(s string) (EntityStatus, bool) {
	switch EntityStatus(s) {
	case StatusDraft, StatusPublished, StatusModified, StatusWithdrawn, StatusArchived, StatusDeleted:
		return EntityStatus(s), true
	}
	return "", false
}

// IsPublished returns true if a published version is visible
func (s EntityStatus) IsPublished() bool {
	return s == StatusPublished || s == StatusModified
}

// StatusAfterEdit returns the status after a new latest version is written.
// Editing an archived entity brings it back the way unarchive would.
func StatusAfterEdit(current EntityStatus, neverPublished bool) (EntityStatus, error) {
	switch current {
	case StatusDraft, StatusWithdrawn:
		return current, nil
	case StatusPublished, StatusModified:
		return StatusModified, nil
	case StatusArchived:
		return StatusAfterUnarchive(current, neverPublished)
	case StatusDeleted:
		return "", NotFound("entity is deleted")
	}
	return "", BadRequest("unknown entity status %q", current)
}

// StatusAfterPublish returns the status after publishing a version.
// latest tells if the published version is the latest one.
func StatusAfterPublish(current EntityStatus, latest bool) (EntityStatus, error) {
	switch current {
	case StatusDraft, StatusPublished, StatusModified, StatusWithdrawn:
		if latest {
			return StatusPublished, nil
		}
		return StatusModified, nil
	case StatusArchived:
		return "", BadRequest("entity is archived, unarchive it before publishing")
	case StatusDeleted:
		return "", NotFound("entity is deleted")
	}
	return "", BadRequest("unknown entity status %q", current)
}

// StatusAfterUnpublish returns the status after unpublishing
func StatusAfterUnpublish(current EntityStatus) (EntityStatus, error) {
	switch current {
	case StatusPublished, StatusModified:
		return StatusWithdrawn, nil
	case StatusDeleted:
		return "", NotFound("entity is deleted")
	}
	return "", BadRequest("entity is not published (status: %s)", current)
}

// StatusAfterArchive returns the status after archiving
func StatusAfterArchive(current EntityStatus) (EntityStatus, error) {
	switch current {
	case StatusDraft, StatusWithdrawn, StatusArchived:
		return StatusArchived, nil
	case StatusPublished, StatusModified:
		return "", BadRequest("entity is published, unpublish it before archiving")
	case StatusDeleted:
		return "", NotFound("entity is deleted")
	}
	return "", BadRequest("unknown entity status %q", current)
}

// StatusAfterUnarchive returns draft for never published entities and withdrawn otherwise
func StatusAfterUnarchive(current EntityStatus, neverPublished bool) (EntityStatus, error) {
	switch current {
	case StatusArchived:
		if neverPublished {
			return StatusDraft, nil
		}
		return StatusWithdrawn, nil
	case StatusDraft, StatusPublished, StatusModified, StatusWithdrawn:
		return current, nil
	case StatusDeleted:
		return "", NotFound("entity is deleted")
	}
	return "", BadRequest("unknown entity status %q", current)
}

// StatusAfterDelete only allows archived entities to be deleted
func StatusAfterDelete(current EntityStatus) (EntityStatus, error) {
	switch current {
	case StatusArchived:
		return StatusDeleted, nil
	case StatusDeleted:
		return "", NotFound("entity is deleted")
	}
	return "", BadRequest("entity must be archived before it is deleted (status: %s)", current)
}
