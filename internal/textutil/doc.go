// Package textutil provides location-string helpers: filesystem-safe
// directory tokens and display-cased headings.
package textutil
