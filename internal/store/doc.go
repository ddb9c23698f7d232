// Package store implements the task synchronization store: the in-memory
// task collection for the signed-in identity, kept in step with the remote
// repository and written through to the local cache.
//
// The store reacts to identity changes from the auth gateway. Sign-out
// clears the collection synchronously inside the notification. Sign-in, and
// construction while signed in, start a background Sync.
//
// Operations are not serialized against each other. Repository calls run
// without holding the store's lock, so two overlapping mutations of the same
// task both observe the same prior state and the later repository response
// wins. Callers that need stronger guarantees set Patch.IfVersion.
//
// Example:
//
//	s, err := store.New(store.Options{
//	    Auth:       gateway,
//	    Repository: repo,
//	    Cache:      c,
//	})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	_ = s.Sync(ctx)
//	for _, t := range s.Snapshot().Tasks {
//	    fmt.Println(t.Title)
//	}
package store
