package storage

// ShortID returns the first 8 characters of a session or target ID,
// used for journal filenames and log fields.
func ShortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
