// Package cache keeps synthesised audio on disk so passages that are read
// again, after a retune back or a reload, are not synthesised twice.
package cache
