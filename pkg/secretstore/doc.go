// Package secretstore reads and writes versioned JSON secrets in Google Cloud
// Secret Manager with end-to-end corruption detection.
//
// # Integrity protocol
//
// On write, AddSecretVersion serializes the payload to UTF-8 JSON, computes a
// CRC32C (Castagnoli) checksum over those exact bytes and sends both. Secret
// Manager records the checksum alongside the version.
//
// On read, GetSecret fetches the version tagged "latest", recomputes the
// checksum over the bytes it received and compares it with the recorded one:
//
//   - mismatch or no recorded checksum: IntegrityError, no data returned
//   - bytes not UTF-8 or not JSON: DecodeError
//   - otherwise the decoded JSON value
//
// The checksum sent on write is trusted as-is; protection covers corruption in
// transit or at rest detected at read time.
//
// # Usage
//
//	store, err := secretstore.New(ctx, "my-project")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if err := store.CreateSecret(ctx, "db-creds"); err != nil && !rcerrors.IsAlreadyExists(err) {
//	    return err
//	}
//	if _, err := store.AddSecretVersion(ctx, "db-creds", map[string]string{"user": "app"}); err != nil {
//	    return err
//	}
//
//	var creds struct{ User string `json:"user"` }
//	if err := store.DecodeSecret(ctx, "db-creds", &creds); err != nil {
//	    return err
//	}
//
// A Store holds no state besides its project and client; treat it as owned by
// one goroutine unless the underlying client is known to be safe to share.
package secretstore
