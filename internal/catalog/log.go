package catalog

import "github.com/rs/zerolog/log"

func logDetectorPanic(detector, symbol string, r interface{}) {
	log.Error().
		Str("detector", detector).
		Str("symbol", symbol).
		Interface("panic", r).
		Msg("catalog: detector panicked, isolated from scan")
}
