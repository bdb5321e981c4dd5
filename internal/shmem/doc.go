// Package shmem provisions the shared-memory object handed out to every
// peer. A bare name resolves under /dev/shm, matching shm_open(3); a path
// containing a separator is opened as a regular file so the region can live
// on hugetlbfs or any other mount.
//
// Sizing follows the ivshmem convention: the requested size is rounded up
// to the next power of two, and if the filesystem rejects that exact size
// (hugetlbfs only accepts multiples of its page size) the candidate is
// doubled until truncation succeeds or the 1 GiB ceiling is passed. The
// region may therefore end up larger than requested; clients learn the real
// size by fstat'ing the descriptor they receive.
package shmem
