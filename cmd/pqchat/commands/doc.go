// Package commands defines the pqchat CLI and wires dependencies for subcommands.
//
// Commands
//
//   - register <username>  Create an identity and publish its public key
//   - fingerprint          Print the identity fingerprint
//   - users                List registered users and who is online
//   - chat <peer>          Open an interactive session with a peer
//   - send <peer> <text>   Connect, send one message and exit
//   - history <peer>       Print the stored conversation with a peer
//   - purge <peer>         Delete the stored conversation with a peer
//
// # Implementation
//
// The root command merges defaults, the config file and flags into an
// app.Config and builds the dependency graph before any subcommand runs.
// Commands that talk to a peer unlock the identity and dial the relay's
// presence hub through app.Wire.Dial. history and purge only need the
// message store, so they use app.Wire.Archive and leave a running chat
// connected.
package commands
