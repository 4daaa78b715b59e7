// Command relay runs the pqchat reference relay: a key directory, a message
// store and a websocket presence hub behind one HTTP listener. Public keys and
// message records are kept in a LevelDB database under datadir.
//
// HTTP API
//
//	POST /register
//	    Publish {username, publicKey}. Re-registering replaces the key.
//
//	GET /keys/{username}
//	    Return the published key of {username}, 404 if unknown.
//
//	GET /users
//	    List registered users and those with a live presence connection.
//
//	POST /messages
//	    Append a message record carrying both encrypted copies.
//
//	GET /messages?user1=A&user2=B
//	    Return every record between A and B, oldest first.
//
//	DELETE /messages?user1=A&user2=B
//	    Delete every record between A and B.
//
//	GET /ws?username=U
//	    Upgrade to the presence websocket for U.
//
//	GET /metrics
//	    Prometheus metrics.
//
// The relay never sees plaintext or private keys and never queues live
// frames: a frame for a user without a presence connection is dropped.
//
// Configuration is read from <datadir>/relay.conf (TOML) and may be
// overridden by flags:
//
//	listen = "127.0.0.1:8080"
//	datadir = "~/.pqrelay"
//	statsinterval = "1m"
//	debuglevel = "info"
//	logfile = "~/.pqrelay/logs/relay.log"
package main
