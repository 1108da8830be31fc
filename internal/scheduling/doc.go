// Package scheduling decides when each platform receives a finished video.
//
// The Planner groups a record's platforms by their optimal hour and reserves
// one (brand, day, hour) slot per group through a SlotClaimer. Claims are
// single atomic writes, so records finishing at the same instant can never
// share an hour for a brand on a day. A lost claim is not an error; the
// planner walks on to the platform's next ranked hour, then the brand ladder,
// then the following days.
package scheduling
