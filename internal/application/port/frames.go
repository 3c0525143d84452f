package port

import "github.com/plumekit/geoperm/internal/domain/entity"

// ConsumerHandle is one live geolocation consumer (the Geolocation object of
// a frame) that can receive the final allow/deny outcome.
type ConsumerHandle interface {
	SetAllowed(allow bool)
}

// FrameWalker iterates the live geolocation consumers in a tab's frame tree.
// Frames are created and destroyed between a request and its decision, so
// delivery is by origin over whatever consumers exist at callback time, not
// by request identity. A frame whose page no longer holds a geolocation
// object is simply not yielded.
type FrameWalker interface {
	ForEachConsumer(fn func(origin entity.Origin, consumer ConsumerHandle))
}
