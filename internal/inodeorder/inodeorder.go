// Package inodeorder holds the ascending-inode comparator the scanner uses
// when handing a directory's children to the catalog and the copy pipeline
// (spec §3/§4.1). The catalog does not call it: its queries order rows with
// SQL "ORDER BY inode ASC", which is the same ascending order.
package inodeorder

// Less reports whether the record with inode a sorts before the one with
// inode b. Exists as a named function, rather than an inline comparison, so
// every caller spells "ascending by inode" the same way.
func Less(a, b uint64) bool {
	return a < b
}
