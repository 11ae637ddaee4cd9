// Package platforms registers every built-in adapter.
package platforms

import (
	"oj_sync/internal/fetcher"
	"oj_sync/internal/fetcher/coderlands"
	"oj_sync/internal/fetcher/hoj"
	"oj_sync/internal/fetcher/hydro"
	"oj_sync/internal/fetcher/luogu"
	"oj_sync/internal/fetcher/ybt"
)

func RegisterAll(r *fetcher.Registry) {
	luogu.Register(r)
	hoj.Register(r)
	ybt.Register(r)
	hydro.Register(r)
	coderlands.Register(r)
}
