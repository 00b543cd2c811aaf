package consts

import "time"

// Packet sizes
const (
	// PACKET_MAX_SIZE is the generic max packet size
	PACKET_MAX_SIZE = 1500
	// PACKET_MAX_SIZE_TCP is the max packet size of TCP channels
	PACKET_MAX_SIZE_TCP = 1460
	// PACKET_MAX_SIZE_UDP is the max packet size of UDP channels
	PACKET_MAX_SIZE_UDP = 1472

	// MESSAGE_ID_SIZE is the size of message id on the wire
	MESSAGE_ID_SIZE = 2
	// MESSAGE_LENGTH_SIZE is the size of variable message length on the wire
	MESSAGE_LENGTH_SIZE = 2
	// MESSAGE_LENGTH_EXT_SIZE is the size of extended message length
	MESSAGE_LENGTH_EXT_SIZE = 4
	// MESSAGE_MAX_LENGTH marks a variable message as using the extended length
	MESSAGE_MAX_LENGTH = 0xFFFF
)

// Tunable Options
const (
	// SEND_MAX_RETRIES is the max number of retries after a failed transport send
	SEND_MAX_RETRIES = 3
	// SEND_RETRY_BACKOFF is the delay before retrying a send on congestion
	SEND_RETRY_BACKOFF = time.Millisecond * 10

	// CHANNEL_INTERNAL_TIMEOUT is the default inactivity timeout of internal channels
	CHANNEL_INTERNAL_TIMEOUT = time.Second * 60
	// CHANNEL_EXTERNAL_TIMEOUT is the default inactivity timeout of external channels
	CHANNEL_EXTERNAL_TIMEOUT = time.Second * 60
	// CHANNEL_INTERNAL_RESEND_INTERVAL is the default resend interval of internal channels
	CHANNEL_INTERNAL_RESEND_INTERVAL = time.Millisecond * 10
	// CHANNEL_EXTERNAL_RESEND_INTERVAL is the default resend interval of external channels
	CHANNEL_EXTERNAL_RESEND_INTERVAL = time.Millisecond * 10
	// CHANNEL_SEND_QUEUE_MAX_LEN is the max number of packets waiting in a channel send queue
	CHANNEL_SEND_QUEUE_MAX_LEN = 10000
	// APP_ACTIVE_TICKS_PER_TIMEOUT is how many active ticks a process sends to each peer within the internal channel timeout
	APP_ACTIVE_TICKS_PER_TIMEOUT = 2
	// CHANNEL_INACTIVITY_CHECK_INTERVAL is the interval of network interface inactivity sweeps
	CHANNEL_INACTIVITY_CHECK_INTERVAL = time.Second

	// MAX_CORRUPTED_PACKETS is the number of consecutive bad packets before a channel is condemned
	MAX_CORRUPTED_PACKETS = 3

	// CALLBACK_DEFAULT_TIMEOUT is the default timeout of pending callbacks
	CALLBACK_DEFAULT_TIMEOUT = time.Second * 300

	// MAIN_LOOP_TICK_INTERVAL is the tick interval of process main loop
	MAIN_LOOP_TICK_INTERVAL = time.Millisecond * 10
	// INBOUND_PACKET_QUEUE_SIZE is the queue size of received packets waiting for the main loop
	INBOUND_PACKET_QUEUE_SIZE = 10000

	// ASYNC_JOB_QUEUE_MAXLEN is the max length of each async job queue
	ASYNC_JOB_QUEUE_MAXLEN = 10000
	// DB_TASK_WARN_THRESHOLD is the duration of db tasks that should be warned
	DB_TASK_WARN_THRESHOLD = time.Millisecond * 100

	// OPMON_DUMP_INTERVAL is the interval to print opmon infos to output
	OPMON_DUMP_INTERVAL = 0

	// MOVER_TICK_INTERVAL is the update interval of move controllers
	MOVER_TICK_INTERVAL = time.Millisecond * 100

	// AOI_DEFAULT_DISTANCE is the default AOI radius of witnesses
	AOI_DEFAULT_DISTANCE = 100
)

// Debug Options
const (
	// DEBUG_PACKETS prints packet send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_CALLBACKS prints callback registry debug logs
	DEBUG_CALLBACKS = false
	// DEBUG_CHANNELS prints channel state transitions
	DEBUG_CHANNELS = false
	// DEBUG_MAILBOX prints mailbox routing debug logs
	DEBUG_MAILBOX = false
)
