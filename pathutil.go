package zkmem

import (
	"strings"
	"unicode/utf8"
)

// parentPath returns everything before the last slash,
// or "/" when the last slash is the leading one.
func parentPath(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx > 0 {
		return path[:idx]
	}
	return "/"
}

func baseName(path string) string {
	idx := strings.LastIndexByte(path, '/')
	return path[idx+1:]
}

func prefixRootPath(root string, path string) string {
	if root == "" {
		return path
	}
	if path == "/" {
		return root
	}
	return root + path
}

func trimRootPath(root string, path string) string {
	if root == "" {
		return path
	}
	if path == root {
		return "/"
	}
	if strings.HasPrefix(path, root) {
		return path[len(root):]
	}
	return path
}

// ValidatePath checks that a path looks like a valid ZooKeeper path: it must
// start with a slash, must not end with one (except a sequential create,
// whose realized name gets a suffix appended), must not contain empty, "."
// or ".." components, and must not contain unprintable characters.
func ValidatePath(path string, isSequential bool) error {
	if path == "" {
		return ErrInvalidPath
	}
	if path[0] != '/' {
		return ErrInvalidPath
	}

	n := len(path)
	if n == 1 {
		// path is just "/"
		return nil
	}

	if !isSequential && path[n-1] == '/' {
		return ErrInvalidPath
	}

	// Start at rune 1 since we already know that the first character is a '/'.
	for i, w := 1, 0; i < n; i += w {
		r, width := utf8.DecodeRuneInString(path[i:])
		switch {
		case r == '\u0000':
			return ErrInvalidPath
		case r == '/':
			last, _ := utf8.DecodeLastRuneInString(path[:i])
			if last == '/' {
				return ErrInvalidPath
			}
		case r == '.':
			last, lastWidth := utf8.DecodeLastRuneInString(path[:i])

			// Check for double dot
			if last == '.' {
				last, _ = utf8.DecodeLastRuneInString(path[:i-lastWidth])
			}

			if last == '/' {
				if i+1 == n {
					return ErrInvalidPath
				}

				next, _ := utf8.DecodeRuneInString(path[i+width:])
				if next == '/' {
					return ErrInvalidPath
				}
			}
		case r >= '\u0000' && r <= '\u001f',
			r >= '\u007f' && r <= '\u009f',
			r >= '\uf000' && r <= '\uf8ff',
			r >= '\ufff0' && r < '\uffff':
			return ErrInvalidPath
		}
		w = width
	}
	return nil
}
