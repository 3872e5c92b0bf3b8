package management

import "github.com/fatih/color"

// style colours terminal output. Colour is disabled automatically when the
// output is not a terminal or NO_COLOR is set.
type style struct {
	noticeColor  *color.Color
	errorColor   *color.Color
	successColor *color.Color
	warningColor *color.Color
}

func newStyle() *style {
	return &style{
		noticeColor:  color.New(color.FgRed),
		errorColor:   color.New(color.FgRed, color.Bold),
		successColor: color.New(color.FgGreen),
		warningColor: color.New(color.FgYellow),
	}
}

func (s *style) notice(format string, args ...any) string {
	return s.noticeColor.Sprintf(format, args...)
}

func (s *style) failure(format string, args ...any) string {
	return s.errorColor.Sprintf(format, args...)
}

func (s *style) success(format string, args ...any) string {
	return s.successColor.Sprintf(format, args...)
}

func (s *style) warning(format string, args ...any) string {
	return s.warningColor.Sprintf(format, args...)
}
