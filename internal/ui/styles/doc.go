// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for chatstream.
//
// All colors are Lip Gloss AdaptiveColors, so light and dark terminals get
// their own palette without configuration. Status messages always carry an
// ASCII indicator ([OK], [X], [!], [i]) next to the color.
//
// # Key Types
//
//   - Theme: every style the TUI renders with, sized to the window
//   - LayoutMode: narrow, medium or wide layout from the window width
//
// # Usage
//
//	theme := styles.NewTheme()
//	theme.SetSize(msg.Width, msg.Height)
//	header := theme.Header.Width(theme.Width).Render("chatstream")
//	fmt.Println(styles.RenderError("API key missing"))
package styles
