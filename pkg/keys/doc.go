/*
Package keys implements the API key registry used to authenticate relay clients.

A Registry holds every known credential in memory, keyed by secret, together
with a derived set of the secrets that are currently active. The table is
populated from a Store and can be written back to it. Three stores are
provided:

  - FileStore: the line-oriented "name:secret:description" file
  - SQLStore: a SQLite database (modernc.org/sqlite or mattn/go-sqlite3)
  - RedisStore: hashes in a Redis database

Validation never touches the store. Freshness is owned by RefreshIfStale,
which reloads only when the store reports a modification time strictly
newer than the last load. A Refresher calls it on a cron schedule and, for
file stores, whenever the key file changes on disk.

Freshness is therefore eventual. An edit to the key file is honoured only
after the Refresher's next tick or the end of its watch debounce, and with
refresh disabled only an explicit Load (the admin reload route) picks it
up. Mutations made through the Registry are visible immediately.

Store I/O and mutations are serialized: a Load never discards a Create or
Deactivate that ran while it was reading, and concurrent Saves reach the
store in order.

Basic usage:

	store := keys.NewFileStore("api_keys.txt")
	reg := keys.NewRegistry(store)
	if err := reg.Load(ctx); err != nil {
		return err
	}

	if reg.Validate(secret) {
		// admitted; usage_count and last_used were updated
	}

	secret, err := reg.Create("ci-runner", "used by the build farm")
*/
package keys
