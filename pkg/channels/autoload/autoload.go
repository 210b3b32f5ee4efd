// Package autoload registers every built-in channel factory. Import it for
// its side effects.
package autoload

import (
	_ "ebpro/pkg/channels/telegram"
	_ "ebpro/pkg/channels/web"
)
