// Package domain models sailing-performance log data and its reduction
// into samples suitable for polar aggregation.
//
// # Log Format
//
// Uploaded logs are Expedition instrument exports. A file begins with an
// arbitrary preamble (exclamation-prefixed comment lines, column listings,
// blank lines); data lines follow. Each data line is a comma-separated
// sequence of channel,value pairs:
//
//	0,45723.52431,1,6.42,2,12.3,3,-47.5,4,6.38,...
//
// The channel number identifies the instrument, the value is its reading
// at that moment. Channels used here (standard Expedition numbering):
//
//	0  Utc  timestamp as fractional days since 1899-12-30 (Excel epoch)
//	1  Bsp  boat speed through water, knots
//	2  Tws  true wind speed, knots
//	3  Twa  true wind angle, degrees, negative on port tack
//	4  Sog  speed over ground, knots (fallback when Bsp is absent or zero)
//
// Unknown channels are ignored. A line missing wind speed, wind angle, or
// any usable boat speed is malformed; malformed lines are skipped and
// counted, never fatal to the file.
//
// # Angle Convention
//
// True wind angle is folded to [0, 180]: port and starboard are treated
// as symmetric, so -47.5 and 47.5 land in the same polar cell. Every
// consumer of Sample.TWA can rely on this range.
//
// # Filtering
//
// Plausibility windows follow practical racing ranges: sailable wind
// (roughly 2–30 kt true), boat speeds a keelboat can actually hold
// (1–25 kt), and angles a boat can actually sail (above ~5° off the
// wind). Readings outside the windows are instrument noise (mast-rotation
// spikes, dockside idling) and are dropped before aggregation. An optional rolling-median check rejects isolated boat
// speed spikes that fall inside the windows.
package domain
