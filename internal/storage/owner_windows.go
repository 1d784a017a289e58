package storage

// ChownToInvoker does nothing: an elevated process on Windows keeps the
// invoking user's profile and ownership.
func ChownToInvoker(string) error {
	return nil
}
