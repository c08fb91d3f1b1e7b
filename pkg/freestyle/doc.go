// Package freestyle implements the USB-HID session protocol spoken by
// Abbott FreeStyle blood-glucose meters: fixed 65-byte report framing,
// keep-alive filtering, the Speck-64/128 based encrypted-profile
// mutual-authentication handshake and per-frame record protection, and
// reassembly of multi-frame text-channel and CSV multirecord replies.
//
// Callers open a transport with OpenDevice (or supply their own Device,
// e.g. for tests or an emulator), wrap it in a Session with NewSession,
// and call Connect before issuing commands. Encrypted-profile devices are
// detected by product id and get a transparent handshake on Connect; all
// other traffic looks identical to the caller regardless of profile.
package freestyle
