// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui

// Tunable annotates a value as something that might want to be tuned
// as the emulator's behavior gets calibrated against real devices.
func Tunable[T any](x T) T {
	return x
}
