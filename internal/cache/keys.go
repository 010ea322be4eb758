package cache

import "fmt"

const (
	entryKeyPattern    = "diary:entry:%d"
	userEntriesPattern = "diary:user:%d:entries"
)

// EntryKey caches a single entry.
func EntryKey(entryID uint) string {
	return fmt.Sprintf(entryKeyPattern, entryID)
}

// UserEntriesKey caches the ordered entry list of one owner.
func UserEntriesKey(userID uint) string {
	return fmt.Sprintf(userEntriesPattern, userID)
}
