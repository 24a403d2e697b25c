// Package statecache mirrors the latest state of every switch into Redis.
//
// Each switch is stored as a JSON document under switch:state:{id}, so
// dashboards and other services can read current state without talking to
// this process. The cache is write-through only; nothing is read back at
// startup.
package statecache
