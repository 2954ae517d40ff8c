// Package preview derives and caches sized preview artifacts from canonical
// originals. Its central guarantee is per-key single-flight generation: any
// number of concurrent requests for the same (photo, size, format) key
// trigger exactly one decode/resize/encode execution and share its result.
package preview
