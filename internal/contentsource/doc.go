// Package contentsource fetches meeting recordings into the upload
// directory. The concrete source (Drive or mock) is chosen once by New from
// configuration; callers only see the Source interface.
package contentsource
