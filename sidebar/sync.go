// Package sidebar keeps the stream list in a subreddit's sidebar in line with
// the online state of the streams that subreddit follows.
package sidebar

import "strings"

// DefaultHeader marks where the stream list lives in a sidebar.
const DefaultHeader = "# Streams"

// linePrefix starts every line of the stream list.
const linePrefix = "> "

// lineSuffix forces a markdown line break after each entry.
const lineSuffix = "  "

// Synchronize returns doc with the stream list under header replaced by one
// line per entry of online, in the given order. The list is the run of lines
// starting with "> " directly below the line holding the header; everything
// else in doc is returned unchanged. Inserted lines end like the header line,
// so CRLF documents stay CRLF. If doc has no header, configured is false and
// doc is returned as is.
//
// Synchronize is idempotent: feeding its output back with the same online
// set yields the same text.
func Synchronize(doc, header string, online []string) (out string, configured bool) {
	idx := strings.Index(doc, header)
	if header == "" || idx < 0 {
		return doc, false
	}
	lines := strings.Split(doc, "\n")
	headerLine := strings.Count(doc[:idx+len(header)], "\n")

	// Drop the old list: the contiguous blockquote lines after the header.
	end := headerLine + 1
	for end < len(lines) && strings.HasPrefix(lines[end], linePrefix) {
		end++
	}

	eol := ""
	if strings.HasSuffix(lines[headerLine], "\r") {
		eol = "\r"
	}

	result := make([]string, 0, len(lines)-(end-headerLine-1)+len(online))
	result = append(result, lines[:headerLine+1]...)
	for i, name := range online {
		line := linePrefix + name + lineSuffix
		// the last line of a document carries no line ending
		if i < len(online)-1 || end < len(lines) {
			line += eol
		}
		result = append(result, line)
	}
	result = append(result, lines[end:]...)
	return strings.Join(result, "\n"), true
}
