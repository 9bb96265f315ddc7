// Package events ingests the generation service's job event stream.
//
// Raw websocket frames are decoded into Event values and handed to a single
// dispatch function that updates execution state, feeds the staging
// controller, inserts finished images into the gallery, and raises
// destination-aware notifications. Events are handled one at a time; malformed
// frames are logged and dropped without stopping the stream.
package events
