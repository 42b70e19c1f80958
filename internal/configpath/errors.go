package configpath

import (
	"fmt"

	"github.com/identedit/identedit/internal/ierrors"
)

func invalidRequest(format string, args ...any) *ierrors.Error {
	return ierrors.New(ierrors.InvalidRequest, fmt.Sprintf(format, args...))
}

func targetMissing(format string, args ...any) *ierrors.Error {
	return ierrors.New(ierrors.TargetMissing, fmt.Sprintf(format, args...))
}
