package lifecycle

import "os"

func statExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func osRemove(path string) error {
	return os.Remove(path)
}

func osWriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o640)
}
