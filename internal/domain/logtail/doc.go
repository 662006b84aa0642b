// Package logtail reads the tail of application log files.
//
// Reads are bounded: plain files are scanned backward in chunks from EOF
// and gzip-rotated files stream through a fixed-size line ring, so a
// multi-gigabyte log never loads whole. A noise filter drops configured
// transport chatter before lines are returned.
package logtail
