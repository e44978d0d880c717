// Command winecellar captures wine label photos as tasting notes and syncs
// them to the content service.
//
// Subcommands import photos (capture), replay unsynced notes (sync), browse
// and edit the local store (notes), manage the session PIN (pin), report
// environment health (status), and run the background resync daemon
// (daemon). Configuration is read from ~/.config/winecellar/config.toml
// unless --config is given.
package main
