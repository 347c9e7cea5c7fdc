// Package autoscan issues SCAN_ALL requests on its own: when removable
// storage is mounted (udev block events plus a mount-point check) and when
// the catalog database changes on disk (fsnotify with debounce).
//
// Both sources go through the requests endpoint like any other requester, so
// the control server stays the only place that decides what the worker does.
package autoscan
