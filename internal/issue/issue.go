// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	ConfigLoadFailedId Id = iota + 1
	InvalidCoordinatesId
	RemoteUnavailableId
	ImageNotFoundId
	ImageToolMissingId
	ImageUnreadableId
	MissingRuntimeModuleId
	OutputNotWritableId
	MirrorUnavailableId
	PermissionDeniedId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	// Issue is a catalogued failure with Markdown guidance for the user.
	Issue struct {
		id       Id          // ID used to lookup the issue
		mdMsg    MarkdownMsg // Markdown text that will be rendered
		docLinks []HttpLink  // project docs about this issue type
		extLinks []HttpLink  // external links that might be useful for the user
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue through glamour using the given style ("dark",
// "light", "notty" or a JSON style path).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also:\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Could not load the romextract configuration file.

## Configuration file locations:
- Linux: ~/.config/romextract/config.cue
- macOS: ~/Library/Application Support/romextract/config.cue
- Windows: %APPDATA%\romextract\config.cue

## Things you can try:
- Create a default configuration:
~~~
$ romextract config init
~~~

- Inspect the effective configuration:
~~~
$ romextract config show
~~~

## Example configuration:
~~~cue
output: {
  rom_dir: "rom"
  base_rom_dir: "base_rom"
}
log: {
  level: "info"
}
~~~`,
	}

	invalidCoordinatesIssue = &Issue{
		id: InvalidCoordinatesId,
		mdMsg: `
# Invalid firmware coordinates!

A remote extraction needs an OEM, a product and a branch, each a single
path segment.

## Example:
~~~
$ romextract remote google oriole oriole-user-14-AP2A.240805.005
~~~`,
	}

	remoteUnavailableIssue = &Issue{
		id: RemoteUnavailableId,
		mdMsg: `
# Firmware dump not reachable!

The dump repository did not answer or kept failing after all retries.

## Things you can try:
- Check the coordinates: OEM, product and branch are case-sensitive
- Check network access to the dump host (remote.base_url)
- Increase remote.max_attempts or remote.backoff in your configuration
- Re-run the command: completed downloads are cached and partial ones resume`,
	}

	imageNotFoundIssue = &Issue{
		id: ImageNotFoundId,
		mdMsg: `
# Firmware image not found!

The path given to ` + "`romextract image`" + ` does not exist.

## Things you can try:
- Pass a system image file (for example ` + "`system.img`" + `)
- Or pass a directory holding an already extracted dump`,
	}

	imageToolMissingIssue = &Issue{
		id: ImageToolMissingId,
		mdMsg: `
# 7-Zip not found!

Reading filesystem images and module payloads requires the ` + "`7z`" + ` tool.

## Things you can try:
- Install it:
  - Debian/Ubuntu: ` + "`sudo apt install p7zip-full`" + `
  - macOS: ` + "`brew install p7zip`" + `
- Or point tools.seven_zip at the binary in your configuration`,
	}

	imageUnreadableIssue = &Issue{
		id: ImageUnreadableId,
		mdMsg: `
# Firmware image could not be read!

7-Zip failed to list the image contents.

## Things you can try:
- Check that the file is an unsparsed ext4 or EROFS image
- Convert sparse images first:
~~~
$ simg2img system.img system.raw.img
~~~
- Run with ` + "`--verbose`" + ` to see the tool output`,
	}

	missingRuntimeModuleIssue = &Issue{
		id: MissingRuntimeModuleId,
		mdMsg: `
# Runtime module missing!

No module package supplied the ` + "`com.android.art`" + ` classpath fragments, so the
boot and system server classpaths cannot be assembled.

## Things you can try:
- Check the module report above for a failed ` + "`com.android.art`" + ` package
- Verify the firmware ships the runtime module under /system/apex`,
	}

	outputNotWritableIssue = &Issue{
		id: OutputNotWritableId,
		mdMsg: `
# Output directory not writable!

The extracted files could not be written.

## Things you can try:
- Check free disk space
- Point output.rom_dir or output.base_rom_dir at a directory you own`,
	}

	mirrorUnavailableIssue = &Issue{
		id: MirrorUnavailableId,
		mdMsg: `
# Object storage mirror not reachable!

The mirror is enabled but the bucket could not be reached.

## Things you can try:
- Check mirror.endpoint and the credentials
- Disable the mirror:
~~~cue
mirror: {
  enabled: false
}
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

You don't have permission to perform this operation.

## Things you can try:
- Check file/directory permissions of the output and cache directories
- Run romextract from a directory you own`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		invalidCoordinatesIssue.Id():   invalidCoordinatesIssue,
		remoteUnavailableIssue.Id():    remoteUnavailableIssue,
		imageNotFoundIssue.Id():        imageNotFoundIssue,
		imageToolMissingIssue.Id():     imageToolMissingIssue,
		imageUnreadableIssue.Id():      imageUnreadableIssue,
		missingRuntimeModuleIssue.Id(): missingRuntimeModuleIssue,
		outputNotWritableIssue.Id():    outputNotWritableIssue,
		mirrorUnavailableIssue.Id():    mirrorUnavailableIssue,
		permissionDeniedIssue.Id():     permissionDeniedIssue,
	}
)

// Values returns the catalogue ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, id := range slices.Sorted(maps.Keys(issues)) {
		out = append(out, issues[id])
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
